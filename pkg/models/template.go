package models

import "time"

// WorkflowTemplate is an ordered sequence of review stages. Once an instance
// has been started from a template its stages are treated as immutable.
type WorkflowTemplate struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	ContentType string    `json:"content_type" db:"content_type"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	// Stages ordered by StageOrder ascending.
	Stages []*WorkflowStage `json:"stages,omitempty"`
}

// FirstStage returns the stage with order 1, or nil if the template has no
// stages.
func (t *WorkflowTemplate) FirstStage() *WorkflowStage {
	for _, s := range t.Stages {
		if s.StageOrder == 1 {
			return s
		}
	}
	return nil
}

// StageAfter returns the stage following the given order, or nil if the
// given order belongs to the last stage.
func (t *WorkflowTemplate) StageAfter(order int) *WorkflowStage {
	for _, s := range t.Stages {
		if s.StageOrder == order+1 {
			return s
		}
	}
	return nil
}

// StageByID returns the stage with the given id, or nil.
func (t *WorkflowTemplate) StageByID(id string) *WorkflowStage {
	for _, s := range t.Stages {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// WorkflowStage is one ordered step of a template. StageOrder values are
// unique and contiguous starting at 1 within a template.
type WorkflowStage struct {
	ID             string    `json:"id" db:"id"`
	TemplateID     string    `json:"template_id" db:"template_id"`
	StageOrder     int       `json:"stage_order" db:"stage_order"`
	Name           string    `json:"stage_name" db:"stage_name"`
	StageType      string    `json:"stage_type" db:"stage_type"`
	RequiredRole   *Role     `json:"required_role,omitempty" db:"required_role"`
	AutoAdvance    bool      `json:"auto_advance" db:"auto_advance"`
	ParallelReview bool      `json:"parallel_review" db:"parallel_review"`
	MinApprovals   int       `json:"min_approvals" db:"min_approvals"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
