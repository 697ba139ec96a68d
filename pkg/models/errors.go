package models

import "fmt"

// ValidationError reports a malformed template, stage or request payload.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Detail
}

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

// UnauthorizedError reports an actor attempting an operation on a task that
// is not theirs.
type UnauthorizedError struct {
	Detail string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Detail
}

// NewUnauthorizedError formats an UnauthorizedError.
func NewUnauthorizedError(format string, args ...any) *UnauthorizedError {
	return &UnauthorizedError{Detail: fmt.Sprintf(format, args...)}
}

// ConflictError reports a state conflict: a double-submitted completion, a
// lost transition race, or an operation against an instance that is no
// longer in the expected state.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Detail
}

// NewConflictError formats a ConflictError.
func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Detail: fmt.Sprintf(format, args...)}
}
