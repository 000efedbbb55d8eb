// Package api contains the core building blocks of the retrofit participant
// workflow. It defines the closed set of participant statuses, the
// per-program step configuration, the sequence derivation, the engine API
// and the observability hooks.
//
// Most users interact with the higher-level retrofit package, which
// re-exports selected types and provides engine constructors for each
// storage backend.
//
// # Statuses and Steps
//
// A program enables any subset of six optional steps. Each enabled step
// contributes a fixed, ordered list of statuses:
//
//	booking          READY_FOR_BOOKING, AUDIT_SCHEDULED
//	initialAudit     INITIAL_AUDIT_COMPLETED
//	techReview       READY_FOR_TECH_REVIEW
//	quoteGeneration  READY_FOR_CONTRACTOR_QUOTE
//	workOrders       WORKORDERS_SENT
//	finalAudit       READY_FOR_FINAL_AUDIT, FINAL_AUDIT_SCHEDULED
//
// DeriveSequence turns a ProgramStepConfig into the ordered list of valid
// statuses. READY_FOR_BOOKING and COMPLETED are always present. ON_HOLD is
// a side state outside the sequence.
//
// # Transitions
//
// Engine.Advance validates a requested transition against the derived
// sequence and, on success, appends a ParticipantStatusUpdate to the
// participant's history. Failures are typed (TerminalStateError,
// InvalidTargetStatusError, ProgramNotFoundError, ...) and unwrap to the
// package sentinels so callers can use errors.Is.
//
// # Observability
//
// Observer receives a callback for every committed or rejected change.
// LoggingObserver writes slog records, BasicMetrics keeps counters, and
// NewCompositeObserver fans out to several observers.
package api
