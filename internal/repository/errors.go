package repository

import "errors"

var (
	// ErrTemplateNotFound is returned when a workflow template is not found.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrStageNotFound is returned when a stage id does not exist or does
	// not belong to the expected template.
	ErrStageNotFound = errors.New("workflow stage not found")

	// ErrInstanceNotFound is returned when a workflow instance is not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrAssignmentNotFound is returned when a stage assignment is not found.
	ErrAssignmentNotFound = errors.New("stage assignment not found")

	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")

	// ErrStaleInstance is returned by conditional instance updates when the
	// instance no longer matches the expected stage or status. Callers that
	// lost a transition race observe this instead of clobbering state.
	ErrStaleInstance = errors.New("instance was modified concurrently")

	// ErrStaleAssignment is returned when completing an assignment that is
	// no longer pending.
	ErrStaleAssignment = errors.New("assignment is no longer pending")
)
