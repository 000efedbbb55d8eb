package api

import "time"

// EventType identifies a participant workflow event.
type EventType string

const (
	EventParticipantCreated EventType = "participant.created"
	EventStatusChanged      EventType = "participant.status_changed"
	// EventAdvisorAssigned carries the advisor in AssignedTo. From and To
	// both hold the unchanged status.
	EventAdvisorAssigned EventType = "participant.advisor_assigned"
)

// StatusChanged is emitted after a transition has been committed. It is the
// unit of work handed to the notification dispatcher, so it must stay
// JSON-encodable and small.
type StatusChanged struct {
	Type          EventType
	ParticipantID string
	ProgramID     string

	// From is empty for EventParticipantCreated.
	From ParticipantStatus
	To   ParticipantStatus

	Actor      string
	Notes      string
	AssignedTo string
	At         time.Time

	// NonAdjacent is set when the move skipped over intermediate statuses
	// or left a status that is no longer part of the sequence.
	NonAdjacent bool

	// Version is the participant version this event was committed at.
	Version int64
}
