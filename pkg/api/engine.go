package api

import "context"

// Engine is the participant workflow API exposed to dashboards and
// automated actors.
type Engine interface {
	// RegisterProgram stores a new program configuration.
	RegisterProgram(ctx context.Context, prog Program) error

	// UpdateProgram replaces an existing program. Participants whose status
	// no longer appears in the new sequence keep it; Next/Previous become
	// unavailable for them until they are moved explicitly.
	UpdateProgram(ctx context.Context, prog Program) error

	// SetProgramActive flips the program's active flag. Activity does not
	// gate transitions.
	SetProgramActive(ctx context.Context, programID string, active bool) error

	// GetProgram returns the program, or a *ProgramNotFoundError.
	GetProgram(ctx context.Context, programID string) (Program, error)

	// ListPrograms returns every registered program ordered by ID.
	ListPrograms(ctx context.Context) ([]Program, error)

	// DeriveSequence returns the ordered valid statuses for a program.
	DeriveSequence(ctx context.Context, programID string) ([]ParticipantStatus, error)

	// CreateParticipant enrols a participant in READY_FOR_BOOKING.
	CreateParticipant(ctx context.Context, np NewParticipant) (*Participant, error)

	// GetParticipant returns a copy of the stored participant.
	GetParticipant(ctx context.Context, id string) (*Participant, error)

	// ListParticipants returns participants matching opts.
	ListParticipants(ctx context.Context, opts ParticipantListOptions) ([]*Participant, error)

	// Advance moves a participant to req.Target and appends a history entry.
	// On error the stored participant is unchanged.
	Advance(ctx context.Context, req TransitionRequest) (*Participant, error)

	// Next advances to the immediate next status of the derived sequence.
	Next(ctx context.Context, participantID, actor, notes string) (*Participant, error)

	// Previous moves back to the immediate previous status.
	Previous(ctx context.Context, participantID, actor, notes string) (*Participant, error)

	// Transitions reports the participant's position and neighbours.
	Transitions(ctx context.Context, participantID string) (Transitions, error)

	// ToggleHold flips OnHold without touching Status or history.
	ToggleHold(ctx context.Context, participantID string) (*Participant, error)

	// AssignAdvisor records the energy advisor responsible for the
	// participant and queues an assignment notification. An empty advisorID
	// clears the assignment without notifying. Status and history are not
	// touched.
	AssignAdvisor(ctx context.Context, participantID, advisorID string) (*Participant, error)

	// SetPriority changes the participant's triage priority. Invalid values
	// return ErrInvalidPriority.
	SetPriority(ctx context.Context, participantID string, priority Priority) (*Participant, error)

	// Resume moves an ON_HOLD participant back to the status it had when it
	// was put on hold.
	Resume(ctx context.Context, participantID, actor, notes string) (*Participant, error)

	// GetHistory returns the ordered audit trail.
	GetHistory(ctx context.Context, participantID string) ([]ParticipantStatusUpdate, error)
}

// Notifier delivers a committed status change to people outside the
// system. It is called by the dispatcher worker, never by the engine.
type Notifier interface {
	Notify(ctx context.Context, p *Participant, ev StatusChanged) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, p *Participant, ev StatusChanged) error

func (f NotifierFunc) Notify(ctx context.Context, p *Participant, ev StatusChanged) error {
	return f(ctx, p, ev)
}
