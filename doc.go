// Package retrofit provides an embeddable participant workflow engine for
// energy-retrofit programs.
//
// Each program enables a subset of optional steps (booking, initial audit,
// tech review, contractor quote, work orders, final audit). The engine
// derives the ordered list of statuses a participant may hold from that
// configuration, validates every status change against it, records an
// append-only history, and hands committed changes to a Notifier through a
// durable outbox.
//
// # Core Concepts
//
//  1. Program and ProgramStepConfig
//  2. Participant and its status history
//  3. Engine
//  4. Outbox queue and Worker
//  5. Observer
//  6. LocalRunner
//
// # Program and ProgramStepConfig
//
// A Program carries a ProgramStepConfig. DeriveSequence turns it into the
// legal sequence. READY_FOR_BOOKING opens every sequence and COMPLETED
// closes it:
//
//	seq := retrofit.DeriveSequence(retrofit.AllSteps())
//	// READY_FOR_BOOKING, AUDIT_SCHEDULED, INITIAL_AUDIT_COMPLETED, ...
//
// ON_HOLD is a side state reachable from anywhere before COMPLETED. The
// separate hold flag (ToggleHold) pauses a participant without changing
// its status.
//
// # Engine
//
// Engine is the main entry point:
//
//	eng := retrofit.NewInMemoryEngine()
//	_ = eng.RegisterProgram(ctx, retrofit.Program{ID: "RES", Name: "Residential", Steps: retrofit.AllSteps()})
//	p, _ := eng.CreateParticipant(ctx, retrofit.NewParticipant{ProgramID: "RES", FirstName: "Ada"})
//	p, _ = eng.Next(ctx, p.ID, "advisor@example.org", "")
//
// Advance accepts any status of the program's sequence. Moves that skip
// statuses are flagged NonAdjacent, or rejected when Options.StrictAdjacency
// is set. Every failure is a typed error that unwraps to a sentinel in
// pkg/api, so errors.Is and errors.As both work.
//
// Engines exist for several backends:
//
//   - NewInMemoryEngine
//   - NewSQLiteEngine
//   - NewPostgresEngine
//   - NewRedisEngine
//   - NewMongoEngine
//
// NewEngineWithOptions combines any Store with an Observer, an outbox
// Queue, adjacency policy, a logger and an OpenTelemetry tracer.
//
// # Outbox and Worker
//
// When Options.Outbox is set, every committed change enqueues a
// StatusChanged task. A Worker drains the queue and calls the Notifier,
// retrying with exponential backoff. A failed delivery never undoes the
// change that caused it. NewSQLiteBundle wires engine, queue and worker on
// a single SQLite database.
//
// # Observers
//
// Observers receive callbacks for created participants, committed and
// rejected changes, hold toggles and abandoned notifications. The package
// provides LoggingObserver, BasicMetrics and CompositeObserver;
// pkg/observability adds a Prometheus observer.
//
// # LocalRunner
//
// LocalRunner wires an in-memory engine, queue and worker for development
// and tests:
//
//	runner := retrofit.NewLocalRunner(notifier)
//	_ = runner.StartWorkers(ctx, 1)
//	defer runner.Stop()
package retrofit
