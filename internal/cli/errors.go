package cli

import (
	"errors"
	"fmt"

	"github.com/petrijr/retrofit/pkg/api"
)

// Exit codes returned by Execute.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitRejected   = 2
	ExitNotFound   = 3
	ExitConflict   = 4
	ExitUsageError = 64
)

// ExitError carries the process exit code for a failed command, so RunE
// functions can fail without calling os.Exit themselves.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError wraps err with an explicit exit code.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// IsExitError reports whether err carries an *ExitError and returns its code.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// ExitCode maps a command error to a process exit code. Rejected
// transitions, missing records and clashes (lost races, taken IDs) get
// distinct codes so scripts can tell them apart.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if code, ok := IsExitError(err); ok {
		return code
	}
	switch {
	case errors.Is(err, api.ErrParticipantNotFound), errors.Is(err, api.ErrProgramNotFound):
		return ExitNotFound
	case errors.Is(err, api.ErrConcurrentModification),
		errors.Is(err, api.ErrParticipantExists),
		errors.Is(err, api.ErrProgramExists):
		return ExitConflict
	case errors.Is(err, api.ErrTerminalState),
		errors.Is(err, api.ErrInvalidTargetStatus),
		errors.Is(err, api.ErrNonAdjacentTransition),
		errors.Is(err, api.ErrParticipantOnHold),
		errors.Is(err, api.ErrNoAdjacentStatus),
		errors.Is(err, api.ErrNothingToResume),
		errors.Is(err, api.ErrInvalidPriority):
		return ExitRejected
	}
	return ExitFailure
}
