package models

import "time"

// StageSpec describes one stage in a template creation request. StageOrder
// is optional; unset orders are filled in from list position.
type StageSpec struct {
	StageOrder     *int   `json:"stage_order,omitempty"`
	StageName      string `json:"stage_name"`
	StageType      string `json:"stage_type"`
	RequiredRole   *Role  `json:"required_role,omitempty"`
	AutoAdvance    *bool  `json:"auto_advance,omitempty"`
	ParallelReview bool   `json:"parallel_review,omitempty"`
	MinApprovals   *int   `json:"min_approvals,omitempty"`
}

// CreateTemplateRequest is the payload for template creation.
type CreateTemplateRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	ContentType string      `json:"content_type"`
	Stages      []StageSpec `json:"stages,omitempty"`
}

// StartWorkflowRequest is the payload for starting an instance.
type StartWorkflowRequest struct {
	TemplateID  string         `json:"template_id"`
	ContentID   string         `json:"content_id"`
	ContentType string         `json:"content_type"`
	Priority    Priority       `json:"priority,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AssignStageRequest is the payload for a manual stage assignment.
type AssignStageRequest struct {
	InstanceID string `json:"instance_id"`
	StageID    string `json:"stage_id"`
	UserID     string `json:"user_id"`
}

// CompleteAssignmentRequest is the payload for completing a reviewer task.
type CompleteAssignmentRequest struct {
	Action ReviewAction `json:"action"`
	Notes  string       `json:"notes,omitempty"`
}

// GrantPermissionRequest is the payload for granting a permission.
type GrantPermissionRequest struct {
	UserID         string `json:"user_id"`
	PermissionType string `json:"permission_type"`
	ResourceType   string `json:"resource_type"`
}
