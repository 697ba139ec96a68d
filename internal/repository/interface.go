package repository

import (
	"context"
	"time"

	"approvalflow/backend/pkg/models"
)

// TemplateStore handles storage of workflow templates and their stages.
type TemplateStore interface {
	// CreateTemplate persists a template together with its stages.
	CreateTemplate(ctx context.Context, tmpl *models.WorkflowTemplate) error
	// GetTemplate returns a template with stages ordered by stage_order.
	GetTemplate(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	// ListTemplates returns templates ordered by name, optionally filtered
	// by content type. Stages are included.
	ListTemplates(ctx context.Context, contentType string) ([]*models.WorkflowTemplate, error)
}

// InstanceStore handles storage of workflow instances.
type InstanceStore interface {
	CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error
	GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// AdvanceStage moves an active instance from one stage to the next.
	// The update is conditional on current_stage_id still being fromStageID
	// and the status still being active; otherwise ErrStaleInstance is
	// returned and no change is made. A nil toStageID completes the
	// instance: status becomes completed, current_stage_id goes null and
	// completed_at is set to now.
	AdvanceStage(ctx context.Context, instanceID, fromStageID string, toStageID *string, now time.Time) error
	// BlockInstance marks an active instance blocked. Conditional on the
	// instance still being active on fromStageID, like AdvanceStage.
	BlockInstance(ctx context.Context, instanceID, fromStageID string) error
}

// AssignmentStore handles storage of stage assignments and the read-side
// projections built from them.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, a *models.StageAssignment) error
	GetAssignment(ctx context.Context, id string) (*models.StageAssignment, error)
	// CompleteAssignment transitions a pending assignment to completed,
	// recording action, notes and timestamps from the given value. Returns
	// ErrStaleAssignment if the row is no longer pending.
	CompleteAssignment(ctx context.Context, a *models.StageAssignment) error
	// CountApprovals returns the number of completed assignments with an
	// approved action for the given (instance, stage) pair.
	CountApprovals(ctx context.Context, instanceID, stageID string) (int, error)
	// ListInstanceAssignments returns the full assignment history of an
	// instance joined with stage and assignee names, ordered by stage
	// order then creation time.
	ListInstanceAssignments(ctx context.Context, instanceID string) ([]*models.AssignmentView, error)
	// ListUserTasks returns a user's assignments with the given status,
	// ordered by instance priority descending then due date ascending.
	ListUserTasks(ctx context.Context, userID string, status models.AssignmentStatus) ([]*models.TaskView, error)
}

// UserStore reads reviewer identities. Users are created externally; the
// engine only needs lookup and role matching, seed tooling inserts.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	// ListActiveUsersByRole returns active users whose role matches.
	ListActiveUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}

// PermissionStore handles the permission grant table.
type PermissionStore interface {
	// GrantPermission inserts a grant; duplicate grants are no-ops.
	GrantPermission(ctx context.Context, g *models.PermissionGrant) error
	HasPermission(ctx context.Context, userID, permissionType, resourceType string) (bool, error)
}

// Repository aggregates all stores behind one dependency for wiring.
type Repository interface {
	TemplateStore
	InstanceStore
	AssignmentStore
	UserStore
	PermissionStore
}
