// Package models defines the domain models for the approval-workflow service
package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusBlocked   InstanceStatus = "blocked"
	InstanceStatusCompleted InstanceStatus = "completed"
)

// AssignmentStatus represents the state of a single reviewer task
type AssignmentStatus string

const (
	AssignmentStatusPending   AssignmentStatus = "pending"
	AssignmentStatusCompleted AssignmentStatus = "completed"
)

// ReviewAction is the decision a reviewer records when completing a task
type ReviewAction string

const (
	ActionApproved ReviewAction = "approved"
	ActionRejected ReviewAction = "rejected"
)

// Valid reports whether the action is one of the known review actions.
func (a ReviewAction) Valid() bool {
	return a == ActionApproved || a == ActionRejected
}

// Priority is advisory ordering metadata for reviewer worklists
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Weight returns the ordinal rank of a priority, higher meaning more urgent.
// Unknown values rank below "low" so malformed rows sort last, not first.
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Role is a capability tag carried by users and matched against a stage's
// required role. Open-ended: templates may introduce new roles freely.
type Role string

// UserStatus represents whether a user may receive assignments
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// HealthStatus represents service health
type HealthStatus struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
