package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/retrofit/pkg/api"
)

var (
	// ErrProgramNotFound is returned when a program is not found.
	ErrProgramNotFound = errors.New("program not found")

	// ErrProgramExists is returned when saving a program ID that is taken.
	ErrProgramExists = errors.New("program already exists")

	// ErrParticipantNotFound is returned when a participant is not found.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrParticipantExists is returned when saving a participant ID that is taken.
	ErrParticipantExists = errors.New("participant already exists")

	// ErrVersionConflict is returned by UpdateParticipant when the stored
	// version does not match the expected one.
	ErrVersionConflict = errors.New("participant version conflict")

	// ErrHistoryRewrite is returned when an update would drop history entries.
	ErrHistoryRewrite = errors.New("status history is append-only")
)

// ProgramStore handles storage of program configurations.
type ProgramStore interface {
	SaveProgram(ctx context.Context, prog api.Program) error
	UpdateProgram(ctx context.Context, prog api.Program) error
	GetProgram(ctx context.Context, id string) (api.Program, error)
	// ListPrograms returns all programs ordered by ID.
	ListPrograms(ctx context.Context) ([]api.Program, error)
}

// ParticipantFilter is used to select participants from the store.
// Empty string / nil mean "no filter" for that field.
type ParticipantFilter struct {
	ProgramID string
	Status    api.ParticipantStatus
	OnHold    *bool
}

// Matches reports whether p passes the filter.
func (f ParticipantFilter) Matches(p *api.Participant) bool {
	if f.ProgramID != "" && p.ProgramID != f.ProgramID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.OnHold != nil && p.OnHold != *f.OnHold {
		return false
	}
	return true
}

// ParticipantStore handles storage of participants and their status history.
type ParticipantStore interface {
	// SaveParticipant inserts a new participant.
	SaveParticipant(ctx context.Context, p *api.Participant) error

	// UpdateParticipant replaces the stored participant if, and only if, its
	// stored Version equals expectedVersion. p.Version is written as the new
	// version. History entries already stored are never rewritten; only
	// entries beyond the stored count are appended.
	UpdateParticipant(ctx context.Context, p *api.Participant, expectedVersion int64) error

	// GetParticipant returns a copy that the caller may mutate freely.
	GetParticipant(ctx context.Context, id string) (*api.Participant, error)

	// ListParticipants returns participants ordered by creation time, then ID.
	ListParticipants(ctx context.Context, filter ParticipantFilter) ([]*api.Participant, error)
}
