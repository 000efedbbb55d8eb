package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/retrofit/pkg/api"
)

// targetFunc picks the target status once the participant and its
// program's sequence are known. It backs Next, Previous and Resume.
type targetFunc func(p *api.Participant, seq []api.ParticipantStatus) (api.ParticipantStatus, error)

func (e *engineImpl) Advance(ctx context.Context, req api.TransitionRequest) (*api.Participant, error) {
	return e.transition(ctx, "Advance", req, nil)
}

func (e *engineImpl) Next(ctx context.Context, participantID, actor, notes string) (*api.Participant, error) {
	req := api.TransitionRequest{ParticipantID: participantID, Actor: actor, Notes: notes}
	return e.transition(ctx, "Next", req, func(p *api.Participant, seq []api.ParticipantStatus) (api.ParticipantStatus, error) {
		next, ok := api.NextStatus(seq, p.Status)
		if !ok {
			return "", fmt.Errorf("%w: no status after %s for participant %s", api.ErrNoAdjacentStatus, p.Status, p.ID)
		}
		return next, nil
	})
}

func (e *engineImpl) Previous(ctx context.Context, participantID, actor, notes string) (*api.Participant, error) {
	req := api.TransitionRequest{ParticipantID: participantID, Actor: actor, Notes: notes}
	return e.transition(ctx, "Previous", req, func(p *api.Participant, seq []api.ParticipantStatus) (api.ParticipantStatus, error) {
		prev, ok := api.PreviousStatus(seq, p.Status)
		if !ok {
			return "", fmt.Errorf("%w: no status before %s for participant %s", api.ErrNoAdjacentStatus, p.Status, p.ID)
		}
		return prev, nil
	})
}

func (e *engineImpl) Resume(ctx context.Context, participantID, actor, notes string) (*api.Participant, error) {
	req := api.TransitionRequest{ParticipantID: participantID, Actor: actor, Notes: notes}
	return e.transition(ctx, "Resume", req, func(p *api.Participant, _ []api.ParticipantStatus) (api.ParticipantStatus, error) {
		if p.Status != api.StatusOnHold || p.PreHoldStatus == "" {
			return "", fmt.Errorf("%w: participant %s is %s", api.ErrNothingToResume, p.ID, p.Status)
		}
		return p.PreHoldStatus, nil
	})
}

// transition runs the full load, validate, apply and commit cycle under the
// participant's lock, then queues the notification once the lock is
// released. When pick is non-nil it replaces req.Target.
func (e *engineImpl) transition(ctx context.Context, op string, req api.TransitionRequest, pick targetFunc) (_ *api.Participant, err error) {
	ctx, span := e.startSpan(ctx, op,
		attribute.String("participant.id", req.ParticipantID),
		attribute.String("participant.target", string(req.Target)),
		attribute.String("actor", req.Actor),
	)
	defer func() { endSpan(span, err) }()

	p, ev, err := e.commitTransition(ctx, span, req, pick)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, ev)
	return p, nil
}

func (e *engineImpl) commitTransition(ctx context.Context, span trace.Span, req api.TransitionRequest, pick targetFunc) (*api.Participant, api.StatusChanged, error) {
	unlock := e.locks.lock(req.ParticipantID)
	defer unlock()

	p, err := e.loadParticipant(ctx, req.ParticipantID)
	if err != nil {
		e.observer.OnTransitionRejected(ctx, nil, req.Target, err)
		return nil, api.StatusChanged{}, err
	}

	target := req.Target
	reject := func(err error) (*api.Participant, api.StatusChanged, error) {
		e.observer.OnTransitionRejected(ctx, p, target, err)
		return nil, api.StatusChanged{}, err
	}

	// Nothing moves out of COMPLETED, whatever the program says.
	if p.Status.IsTerminal() {
		return reject(&api.TerminalStateError{ParticipantID: p.ID, Target: target})
	}

	prog, err := e.loadProgram(ctx, p.ProgramID)
	if err != nil {
		return reject(err)
	}
	seq := api.DeriveSequence(prog.Steps)

	if pick != nil {
		if target, err = pick(p, seq); err != nil {
			return reject(err)
		}
		span.SetAttributes(attribute.String("participant.target", string(target)))
	}

	nonAdjacent, err := e.validate(p, seq, target)
	if err != nil {
		return reject(err)
	}

	from := p.Status
	expected := p.Version
	update := e.apply(p, target, req)
	p.Version = expected + 1

	if err := e.commit(ctx, p, expected); err != nil {
		return reject(err)
	}

	ev := api.StatusChanged{
		Type:          api.EventStatusChanged,
		ParticipantID: p.ID,
		ProgramID:     p.ProgramID,
		From:          from,
		To:            target,
		Actor:         update.UpdatedBy,
		Notes:         update.Notes,
		AssignedTo:    update.AssignedTo,
		At:            update.UpdatedAt,
		NonAdjacent:   nonAdjacent,
		Version:       p.Version,
	}
	span.SetAttributes(attribute.Bool("transition.non_adjacent", nonAdjacent))

	e.observer.OnStatusChanged(ctx, p.Clone(), ev)
	return p, ev, nil
}

// validate checks target against the derived sequence and the adjacency
// policy. It reports whether the move skips over the sequence.
func (e *engineImpl) validate(p *api.Participant, seq []api.ParticipantStatus, target api.ParticipantStatus) (nonAdjacent bool, err error) {
	if !target.IsValid() || (target != api.StatusOnHold && !api.Contains(seq, target)) {
		return false, &api.InvalidTargetStatusError{
			ParticipantID: p.ID,
			ProgramID:     p.ProgramID,
			Target:        target,
			Sequence:      seq,
		}
	}

	if e.blockAdvanceWhileHeld && p.OnHold && target != api.StatusOnHold {
		return false, fmt.Errorf("%w: %s", api.ErrParticipantOnHold, p.ID)
	}

	adjacent := target == api.StatusOnHold ||
		api.IsAdjacent(seq, p.Status, target) ||
		(p.Status == api.StatusOnHold && p.PreHoldStatus != "" && target == p.PreHoldStatus)

	if adjacent {
		return false, nil
	}
	if e.strictAdjacency {
		return false, &api.NonAdjacentTransitionError{ParticipantID: p.ID, From: p.Status, To: target}
	}
	// Re-recording the current status is not a skip.
	return target != p.Status, nil
}

// apply mutates p for a validated move to target and returns the appended
// history entry. The caller bumps Version.
func (e *engineImpl) apply(p *api.Participant, target api.ParticipantStatus, req api.TransitionRequest) api.ParticipantStatusUpdate {
	now := e.now()
	// History timestamps never go backwards, even if the clock does.
	if last, ok := p.LastUpdate(); ok && now.Before(last.UpdatedAt) {
		now = last.UpdatedAt
	}

	switch {
	case target == api.StatusOnHold && p.Status != api.StatusOnHold:
		p.PreHoldStatus = p.Status
	case target != api.StatusOnHold:
		p.PreHoldStatus = ""
	}

	update := api.ParticipantStatusUpdate{
		Status:     target,
		AssignedTo: req.AssignedTo,
		Notes:      req.Notes,
		UpdatedAt:  now,
		UpdatedBy:  req.Actor,
	}
	p.Status = target
	p.StatusHistory = append(p.StatusHistory, update)

	if target == api.StatusCompleted {
		completed := now
		p.CompletedAt = &completed
	}
	return update
}
