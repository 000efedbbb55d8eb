package api

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the triage level operators attach to a participant.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority accepts a priority name in any case.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q (want high, medium or low)", ErrInvalidPriority, s)
	}
	return p, nil
}

// ParticipantStatusUpdate is a single audit trail entry. Entries are
// appended by the engine and never edited or removed.
type ParticipantStatusUpdate struct {
	Status     ParticipantStatus `json:"status"`
	AssignedTo string            `json:"assignedTo,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	UpdatedBy  string            `json:"updatedBy"`
}

// Participant is a household or business moving through a program.
//
// Contact and property fields are owned by participant-management
// collaborators and carried as-is. Status, OnHold, PreHoldStatus,
// StatusHistory, CompletedAt and Version are owned by the engine and must
// only change through Engine operations.
type Participant struct {
	ID        string `json:"id"`
	ProgramID string `json:"program"`

	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Address         string   `json:"address"`
	City            string   `json:"city"`
	PostalCode      string   `json:"postalCode"`
	PropertyType    string   `json:"propertyType"`
	AssignedAdvisor string   `json:"assignedAdvisor,omitempty"`
	Priority        Priority `json:"priority,omitempty"`

	Status        ParticipantStatus         `json:"status"`
	OnHold        bool                      `json:"onHold"`
	PreHoldStatus ParticipantStatus         `json:"preHoldStatus,omitempty"`
	StatusHistory []ParticipantStatusUpdate `json:"statusHistory"`
	CreatedAt     time.Time                 `json:"createdAt"`
	CompletedAt   *time.Time                `json:"completedAt,omitempty"`

	// Version increases by one on every committed mutation and backs the
	// optimistic concurrency check in the stores.
	Version int64 `json:"version"`
}

// FullName joins first and last name.
func (p *Participant) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// LastUpdate returns the most recent history entry, if any.
func (p *Participant) LastUpdate() (ParticipantStatusUpdate, bool) {
	if len(p.StatusHistory) == 0 {
		return ParticipantStatusUpdate{}, false
	}
	return p.StatusHistory[len(p.StatusHistory)-1], true
}

// Clone returns a deep copy of p.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	cp := *p
	if p.StatusHistory != nil {
		cp.StatusHistory = make([]ParticipantStatusUpdate, len(p.StatusHistory))
		copy(cp.StatusHistory, p.StatusHistory)
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// NewParticipant carries the collaborator-owned fields for enrolment.
// ID is optional; the engine assigns one when empty.
type NewParticipant struct {
	ID              string
	ProgramID       string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Address         string
	City            string
	PostalCode      string
	PropertyType    string
	AssignedAdvisor string
	Priority        Priority
}

// ParticipantListOptions filters ListParticipants. Zero fields mean
// "no filter".
type ParticipantListOptions struct {
	ProgramID string
	Status    ParticipantStatus
	OnHold    *bool
}

// TransitionRequest asks the engine to move a participant to Target.
type TransitionRequest struct {
	ParticipantID string
	Target        ParticipantStatus
	Actor         string
	Notes         string
	AssignedTo    string
}
