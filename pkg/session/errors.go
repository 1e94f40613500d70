package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for sessions that do not exist, have expired or
	// belong to another owner. The three cases are deliberately identical.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a stage change does not move
	// strictly forward.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// ValidationError reports a malformed field in a patch payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
