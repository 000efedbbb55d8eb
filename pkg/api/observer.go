package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the workflow engine for logging and metrics.
//
// Callbacks run synchronously after the corresponding commit (or rejection).
// Implementations should be fast and non-blocking; heavy work belongs on the
// notification queue.
type Observer interface {
	// OnParticipantCreated is called once a new participant is stored.
	OnParticipantCreated(ctx context.Context, p *Participant)

	// OnStatusChanged is called after a transition has been committed.
	OnStatusChanged(ctx context.Context, p *Participant, ev StatusChanged)

	// OnTransitionRejected is called when Advance refuses a transition.
	// p is the unchanged participant, or nil if it could not be loaded.
	OnTransitionRejected(ctx context.Context, p *Participant, target ParticipantStatus, err error)

	// OnHoldToggled is called after the hold flag flipped.
	OnHoldToggled(ctx context.Context, p *Participant)

	// OnNotificationFailed is called when a committed change could not be
	// queued or delivered. The transition itself stands.
	OnNotificationFailed(ctx context.Context, ev StatusChanged, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnParticipantCreated(ctx context.Context, p *Participant)                {}
func (NoopObserver) OnStatusChanged(ctx context.Context, p *Participant, ev StatusChanged) {}
func (NoopObserver) OnTransitionRejected(ctx context.Context, p *Participant, target ParticipantStatus, err error) {
}
func (NoopObserver) OnHoldToggled(ctx context.Context, p *Participant)                      {}
func (NoopObserver) OnNotificationFailed(ctx context.Context, ev StatusChanged, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnParticipantCreated(ctx context.Context, p *Participant) {
	for _, o := range c.observers {
		o.OnParticipantCreated(ctx, p)
	}
}

func (c *CompositeObserver) OnStatusChanged(ctx context.Context, p *Participant, ev StatusChanged) {
	for _, o := range c.observers {
		o.OnStatusChanged(ctx, p, ev)
	}
}

func (c *CompositeObserver) OnTransitionRejected(ctx context.Context, p *Participant, target ParticipantStatus, err error) {
	for _, o := range c.observers {
		o.OnTransitionRejected(ctx, p, target, err)
	}
}

func (c *CompositeObserver) OnHoldToggled(ctx context.Context, p *Participant) {
	for _, o := range c.observers {
		o.OnHoldToggled(ctx, p)
	}
}

func (c *CompositeObserver) OnNotificationFailed(ctx context.Context, ev StatusChanged, err error) {
	for _, o := range c.observers {
		o.OnNotificationFailed(ctx, ev, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs participant lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnParticipantCreated(ctx context.Context, p *Participant) {
	o.Logger.InfoContext(ctx, "participant_created",
		slog.String("participant_id", p.ID),
		slog.String("program_id", p.ProgramID),
	)
}

func (o *LoggingObserver) OnStatusChanged(ctx context.Context, p *Participant, ev StatusChanged) {
	level := slog.LevelInfo
	msg := "status_changed"
	if ev.NonAdjacent {
		// Jumps bypass the bookkeeping of the skipped steps.
		level = slog.LevelWarn
		msg = "status_changed_non_adjacent"
	}
	o.Logger.Log(ctx, level, msg,
		slog.String("participant_id", ev.ParticipantID),
		slog.String("program_id", ev.ProgramID),
		slog.String("from", string(ev.From)),
		slog.String("to", string(ev.To)),
		slog.String("actor", ev.Actor),
		slog.Int64("version", ev.Version),
	)
}

func (o *LoggingObserver) OnTransitionRejected(ctx context.Context, p *Participant, target ParticipantStatus, err error) {
	attrs := []any{
		slog.String("target", string(target)),
		slog.Any("error", err),
	}
	if p != nil {
		attrs = append(attrs,
			slog.String("participant_id", p.ID),
			slog.String("status", string(p.Status)),
		)
	}
	o.Logger.InfoContext(ctx, "transition_rejected", attrs...)
}

func (o *LoggingObserver) OnHoldToggled(ctx context.Context, p *Participant) {
	o.Logger.InfoContext(ctx, "hold_toggled",
		slog.String("participant_id", p.ID),
		slog.Bool("on_hold", p.OnHold),
	)
}

func (o *LoggingObserver) OnNotificationFailed(ctx context.Context, ev StatusChanged, err error) {
	o.Logger.ErrorContext(ctx, "notification_failed",
		slog.String("participant_id", ev.ParticipantID),
		slog.String("to", string(ev.To)),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters. It implements Observer and can be
// combined with LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	participantsCreated  atomic.Int64
	transitions          atomic.Int64
	nonAdjacent          atomic.Int64
	completions          atomic.Int64
	rejections           atomic.Int64
	holdToggles          atomic.Int64
	notificationFailures atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ParticipantsCreated  int64
	Transitions          int64
	NonAdjacent          int64
	Completions          int64
	Rejections           int64
	HoldToggles          int64
	NotificationFailures int64
}

func (m *BasicMetrics) OnParticipantCreated(ctx context.Context, p *Participant) {
	m.participantsCreated.Add(1)
}

func (m *BasicMetrics) OnStatusChanged(ctx context.Context, p *Participant, ev StatusChanged) {
	m.transitions.Add(1)
	if ev.NonAdjacent {
		m.nonAdjacent.Add(1)
	}
	if ev.To == StatusCompleted {
		m.completions.Add(1)
	}
}

func (m *BasicMetrics) OnTransitionRejected(ctx context.Context, p *Participant, target ParticipantStatus, err error) {
	m.rejections.Add(1)
}

func (m *BasicMetrics) OnHoldToggled(ctx context.Context, p *Participant) {
	m.holdToggles.Add(1)
}

func (m *BasicMetrics) OnNotificationFailed(ctx context.Context, ev StatusChanged, err error) {
	m.notificationFailures.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		ParticipantsCreated:  m.participantsCreated.Load(),
		Transitions:          m.transitions.Load(),
		NonAdjacent:          m.nonAdjacent.Load(),
		Completions:          m.completions.Load(),
		Rejections:           m.rejections.Load(),
		HoldToggles:          m.holdToggles.Load(),
		NotificationFailures: m.notificationFailures.Load(),
	}
}
