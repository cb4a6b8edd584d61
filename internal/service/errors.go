package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrForbidden is returned when the caller does not own the conversation.
	ErrForbidden = errors.New("conversation belongs to another user")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrIncompleteTurn is returned when the user message was stored but the
	// assistant reply was not. The returned Turn carries the stored message.
	ErrIncompleteTurn = errors.New("reply could not be saved")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
