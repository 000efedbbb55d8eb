// Package observability exports engine activity as Prometheus metrics.
package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/retrofit/pkg/api"
)

const namespace = "retrofit"

// PrometheusObserver is an api.Observer that maintains Prometheus
// counters. Combine it with a LoggingObserver via api.NewCompositeObserver.
type PrometheusObserver struct {
	api.NoopObserver

	created       *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	holdToggles   *prometheus.CounterVec
	notifyFailure *prometheus.CounterVec
}

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_created_total",
			Help:      "Participants enrolled, by program.",
		}, []string{"program"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Committed status transitions, by program, target status and adjacency.",
		}, []string{"program", "to", "non_adjacent"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_rejections_total",
			Help:      "Rejected transitions, by reason.",
		}, []string{"reason"}),
		holdToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_toggles_total",
			Help:      "Hold flag changes, by resulting state.",
		}, []string{"on_hold"}),
		notifyFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Status change notifications that could not be queued or delivered.",
		}, []string{"program"}),
	}

	for _, c := range []prometheus.Collector{o.created, o.transitions, o.rejections, o.holdToggles, o.notifyFailure} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnParticipantCreated(ctx context.Context, p *api.Participant) {
	o.created.WithLabelValues(p.ProgramID).Inc()
}

func (o *PrometheusObserver) OnStatusChanged(ctx context.Context, p *api.Participant, ev api.StatusChanged) {
	nonAdjacent := "false"
	if ev.NonAdjacent {
		nonAdjacent = "true"
	}
	o.transitions.WithLabelValues(ev.ProgramID, string(ev.To), nonAdjacent).Inc()
}

func (o *PrometheusObserver) OnTransitionRejected(ctx context.Context, p *api.Participant, target api.ParticipantStatus, err error) {
	o.rejections.WithLabelValues(RejectionReason(err)).Inc()
}

func (o *PrometheusObserver) OnHoldToggled(ctx context.Context, p *api.Participant) {
	state := "false"
	if p.OnHold {
		state = "true"
	}
	o.holdToggles.WithLabelValues(state).Inc()
}

func (o *PrometheusObserver) OnNotificationFailed(ctx context.Context, ev api.StatusChanged, err error) {
	o.notifyFailure.WithLabelValues(ev.ProgramID).Inc()
}

// RejectionReason maps an engine error onto a small, fixed label set.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, api.ErrParticipantNotFound):
		return "participant_not_found"
	case errors.Is(err, api.ErrProgramNotFound):
		return "program_not_found"
	case errors.Is(err, api.ErrTerminalState):
		return "terminal_state"
	case errors.Is(err, api.ErrInvalidTargetStatus):
		return "invalid_target"
	case errors.Is(err, api.ErrNonAdjacentTransition):
		return "non_adjacent"
	case errors.Is(err, api.ErrParticipantOnHold):
		return "on_hold"
	case errors.Is(err, api.ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, api.ErrNoAdjacentStatus):
		return "no_adjacent_status"
	case errors.Is(err, api.ErrNothingToResume):
		return "nothing_to_resume"
	default:
		return "other"
	}
}
