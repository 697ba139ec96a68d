package models

import "time"

// WorkflowInstance represents one content item's journey through one
// template. Instances are never deleted; they remain as an audit trail.
type WorkflowInstance struct {
	ID             string         `json:"id" db:"id"`
	TemplateID     string         `json:"template_id" db:"template_id"`
	ContentID      string         `json:"content_id" db:"content_id"`
	ContentType    string         `json:"content_type" db:"content_type"`
	CurrentStageID *string        `json:"current_stage_id,omitempty" db:"current_stage_id"`
	Status         InstanceStatus `json:"status" db:"status"`
	Priority       Priority       `json:"priority" db:"priority"`
	InitiatedBy    string         `json:"initiated_by" db:"initiated_by"`
	DueDate        *time.Time     `json:"due_date,omitempty" db:"due_date"`

	// Metadata is an opaque bag serialized as JSONB. It is an unordered
	// map: key insertion order is not preserved across save/load.
	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// StageAssignment is one reviewer's task for one stage of one instance.
// Assignments are never deleted, only transitioned pending -> completed.
type StageAssignment struct {
	ID           string           `json:"id" db:"id"`
	InstanceID   string           `json:"instance_id" db:"instance_id"`
	StageID      string           `json:"stage_id" db:"stage_id"`
	AssignedUser string           `json:"assigned_user" db:"assigned_user"`
	AssignedBy   string           `json:"assigned_by" db:"assigned_by"`
	Status       AssignmentStatus `json:"status" db:"status"`
	ActionTaken  *ReviewAction    `json:"action_taken,omitempty" db:"action_taken"`
	Notes        *string          `json:"notes,omitempty" db:"notes"`
	StartedAt    *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// AssignmentView joins an assignment with stage and assignee display data
// for instance history rendering.
type AssignmentView struct {
	*StageAssignment
	StageName    string `json:"stage_name"`
	StageOrder   int    `json:"stage_order"`
	AssigneeName string `json:"assignee_name"`
}

// InstanceDetail is the full read-side view of an instance: the row, the
// current stage (nil when completed), and the ordered assignment history.
type InstanceDetail struct {
	*WorkflowInstance
	CurrentStage *WorkflowStage    `json:"current_stage,omitempty"`
	Assignments  []*AssignmentView `json:"assignments"`
}

// TaskView is one entry in a reviewer's worklist: a pending (or completed)
// assignment annotated with the instance and stage context needed to act
// on it.
type TaskView struct {
	*StageAssignment
	StageName   string     `json:"stage_name"`
	ContentID   string     `json:"content_id"`
	ContentType string     `json:"content_type"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}
