package auditor

import (
	"errors"
	"fmt"
)

var (
	// ErrAttemptTimeout marks an attempt that hit the per-attempt timeout.
	ErrAttemptTimeout = errors.New("auditor attempt timed out")

	// ErrNoRole is returned when a worker is built without a role.
	ErrNoRole = errors.New("auditor role is required")
)

// ValidationError rejects one attempt's response. It is always retryable.
type ValidationError struct {
	Role string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("auditor %s returned an invalid response: %v", e.Role, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ExecutionError reports that an auditor failed every attempt. The
// orchestrator records the role as failed and never scores it.
type ExecutionError struct {
	Role     string
	Stage    string
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("auditor %s failed on stage %s after %d attempt(s): %v", e.Role, e.Stage, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
