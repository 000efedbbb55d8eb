package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProgramNotFound is returned when a program has no configuration.
	ErrProgramNotFound = errors.New("program not found")

	// ErrProgramExists is returned when registering a program ID twice.
	ErrProgramExists = errors.New("program already registered")

	// ErrParticipantNotFound is returned when a participant does not exist.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrParticipantExists is returned when enrolling with an ID that is
	// already taken.
	ErrParticipantExists = errors.New("participant already exists")

	// ErrInvalidPriority is returned for a priority other than high, medium
	// or low.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrTerminalState is returned for any transition out of COMPLETED.
	ErrTerminalState = errors.New("participant is in a terminal state")

	// ErrInvalidTargetStatus is returned when the target is neither in the
	// program's derived sequence nor ON_HOLD.
	ErrInvalidTargetStatus = errors.New("invalid target status")

	// ErrNonAdjacentTransition is returned under strict adjacency when the
	// target is not the immediate next or previous status.
	ErrNonAdjacentTransition = errors.New("non-adjacent transition")

	// ErrConcurrentModification is returned when the participant changed
	// between read and write. Callers retry with a fresh read.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrParticipantOnHold is returned when advancing a held participant
	// and the engine is configured to block that.
	ErrParticipantOnHold = errors.New("participant is on hold")

	// ErrNoAdjacentStatus is returned by Next/Previous when there is no
	// neighbour in that direction.
	ErrNoAdjacentStatus = errors.New("no adjacent status")

	// ErrNothingToResume is returned by Resume when the participant is not
	// ON_HOLD or has no remembered status.
	ErrNothingToResume = errors.New("nothing to resume")
)

// ProgramNotFoundError identifies the missing program.
type ProgramNotFoundError struct {
	ProgramID string
}

func (e *ProgramNotFoundError) Error() string {
	return fmt.Sprintf("program not found: %s", e.ProgramID)
}

func (e *ProgramNotFoundError) Unwrap() error { return ErrProgramNotFound }

// TerminalStateError is returned for a transition attempted from COMPLETED.
type TerminalStateError struct {
	ParticipantID string
	Target        ParticipantStatus
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("participant %s is %s; cannot transition to %s",
		e.ParticipantID, StatusCompleted, e.Target)
}

func (e *TerminalStateError) Unwrap() error { return ErrTerminalState }

// InvalidTargetStatusError carries the sequence the target was checked
// against.
type InvalidTargetStatusError struct {
	ParticipantID string
	ProgramID     string
	Target        ParticipantStatus
	Sequence      []ParticipantStatus
}

func (e *InvalidTargetStatusError) Error() string {
	names := make([]string, len(e.Sequence))
	for i, s := range e.Sequence {
		names[i] = string(s)
	}
	return fmt.Sprintf("status %q is not valid for participant %s in program %s (allowed: %s, %s)",
		e.Target, e.ParticipantID, e.ProgramID, strings.Join(names, ", "), StatusOnHold)
}

func (e *InvalidTargetStatusError) Unwrap() error { return ErrInvalidTargetStatus }

// NonAdjacentTransitionError is returned under strict adjacency.
type NonAdjacentTransitionError struct {
	ParticipantID string
	From          ParticipantStatus
	To            ParticipantStatus
}

func (e *NonAdjacentTransitionError) Error() string {
	return fmt.Sprintf("participant %s: %s -> %s skips intermediate statuses", e.ParticipantID, e.From, e.To)
}

func (e *NonAdjacentTransitionError) Unwrap() error { return ErrNonAdjacentTransition }

// ConcurrentModificationError reports a stale read snapshot.
type ConcurrentModificationError struct {
	ParticipantID   string
	ExpectedVersion int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("participant %s was modified concurrently (expected version %d)",
		e.ParticipantID, e.ExpectedVersion)
}

func (e *ConcurrentModificationError) Unwrap() error { return ErrConcurrentModification }
