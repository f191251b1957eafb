package job

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that is
	// already running or terminal
	ErrJobAlreadyClaimed = errors.New("job already claimed or not pending")

	// ErrGroupNotFound is returned when no group exists for a reference
	ErrGroupNotFound = errors.New("group not found")
)

// ValidationError rejects a job or group write that would violate the
// open-reference or terminal-membership invariants. It is raised at write
// time, never retried and never recorded in a job's error history.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NewValidationError creates a ValidationError with the given reason.
func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// ResolutionError means a job's name did not resolve to a registered
// operation. It is retried uniformly like any other execution failure.
type ResolutionError struct {
	Name string
}

func (e *ResolutionError) Error() string {
	return "no operation registered for name: " + e.Name
}

// ExecutionError wraps a failure raised by the invoked operation itself,
// including a recovered panic. Stack carries the trace captured at the
// failure site.
type ExecutionError struct {
	Name  string
	Err   error
	Stack string
}

func (e *ExecutionError) Error() string {
	return "operation " + e.Name + " failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
