package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a task id is unknown
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a status change would break the
	// NEW -> PROCESSING -> DONE/ERROR order
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrFileNotFound is returned by the file service for unknown file ids
	ErrFileNotFound = errors.New("file not found")

	// ErrDispatchFailed is returned when a created task could not be published
	ErrDispatchFailed = errors.New("task dispatch failed")
)

// ValidationError reports malformed or missing request input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
