package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"approvalflow/backend/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Repository = (*PostgresStore)(nil)

// CreateTemplate persists a template together with its stages in one
// transaction.
func (s *PostgresStore) CreateTemplate(ctx context.Context, tmpl *models.WorkflowTemplate) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO workflow_templates (id, name, description, content_type, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tmpl.ID, tmpl.Name, tmpl.Description, tmpl.ContentType, tmpl.CreatedBy, tmpl.CreatedAt)
	if err != nil {
		return err
	}

	for _, st := range tmpl.Stages {
		_, err = tx.Exec(ctx,
			`INSERT INTO workflow_stages
			 (id, template_id, stage_order, stage_name, stage_type, required_role, auto_advance, parallel_review, min_approvals, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			st.ID, st.TemplateID, st.StageOrder, st.Name, st.StageType,
			st.RequiredRole, st.AutoAdvance, st.ParallelReview, st.MinApprovals, st.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetTemplate returns a template with its stages ordered by stage_order.
func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	var tmpl models.WorkflowTemplate
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, content_type, created_by, created_at
		 FROM workflow_templates WHERE id = $1`, id).
		Scan(&tmpl.ID, &tmpl.Name, &tmpl.Description, &tmpl.ContentType, &tmpl.CreatedBy, &tmpl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	stages, err := s.templateStages(ctx, id)
	if err != nil {
		return nil, err
	}
	tmpl.Stages = stages

	return &tmpl, nil
}

// ListTemplates returns templates ordered by name, optionally filtered by
// content type.
func (s *PostgresStore) ListTemplates(ctx context.Context, contentType string) ([]*models.WorkflowTemplate, error) {
	query := `SELECT id, name, description, content_type, created_by, created_at
		 FROM workflow_templates ORDER BY name`
	args := []any{}
	if contentType != "" {
		query = `SELECT id, name, description, content_type, created_by, created_at
		 FROM workflow_templates WHERE content_type = $1 ORDER BY name`
		args = append(args, contentType)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*models.WorkflowTemplate
	for rows.Next() {
		var tmpl models.WorkflowTemplate
		if err := rows.Scan(&tmpl.ID, &tmpl.Name, &tmpl.Description, &tmpl.ContentType, &tmpl.CreatedBy, &tmpl.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, &tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tmpl := range templates {
		stages, err := s.templateStages(ctx, tmpl.ID)
		if err != nil {
			return nil, err
		}
		tmpl.Stages = stages
	}

	return templates, nil
}

func (s *PostgresStore) templateStages(ctx context.Context, templateID string) ([]*models.WorkflowStage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, template_id, stage_order, stage_name, stage_type, required_role, auto_advance, parallel_review, min_approvals, created_at
		 FROM workflow_stages WHERE template_id = $1 ORDER BY stage_order`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*models.WorkflowStage
	for rows.Next() {
		var st models.WorkflowStage
		if err := rows.Scan(&st.ID, &st.TemplateID, &st.StageOrder, &st.Name, &st.StageType,
			&st.RequiredRole, &st.AutoAdvance, &st.ParallelReview, &st.MinApprovals, &st.CreatedAt); err != nil {
			return nil, err
		}
		stages = append(stages, &st)
	}
	return stages, rows.Err()
}

// CreateInstance persists a new workflow instance.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	meta, err := json.Marshal(inst.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if inst.Metadata == nil {
		meta = []byte("{}")
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_instances
		 (id, template_id, content_id, content_type, current_stage_id, status, priority, initiated_by, due_date, metadata, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inst.ID, inst.TemplateID, inst.ContentID, inst.ContentType, inst.CurrentStageID,
		inst.Status, inst.Priority, inst.InitiatedBy, inst.DueDate, meta, inst.CreatedAt, inst.CompletedAt)
	return err
}

// GetInstance returns a single instance row.
func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance
	var meta []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, template_id, content_id, content_type, current_stage_id, status, priority, initiated_by, due_date, metadata, created_at, completed_at
		 FROM workflow_instances WHERE id = $1`, id).
		Scan(&inst.ID, &inst.TemplateID, &inst.ContentID, &inst.ContentType, &inst.CurrentStageID,
			&inst.Status, &inst.Priority, &inst.InitiatedBy, &inst.DueDate, &meta, &inst.CreatedAt, &inst.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &inst.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &inst, nil
}

// AdvanceStage conditionally moves an instance to the next stage, or to
// completed when toStageID is nil. The WHERE clause guarantees at most one
// caller wins a concurrent quorum crossing.
func (s *PostgresStore) AdvanceStage(ctx context.Context, instanceID, fromStageID string, toStageID *string, now time.Time) error {
	var tag string
	var args []any
	if toStageID != nil {
		tag = `UPDATE workflow_instances SET current_stage_id = $1
			 WHERE id = $2 AND current_stage_id = $3 AND status = 'active'`
		args = []any{*toStageID, instanceID, fromStageID}
	} else {
		tag = `UPDATE workflow_instances SET status = 'completed', current_stage_id = NULL, completed_at = $1
			 WHERE id = $2 AND current_stage_id = $3 AND status = 'active'`
		args = []any{now, instanceID, fromStageID}
	}

	ct, err := s.db.Exec(ctx, tag, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, instanceID)
	}
	return nil
}

// BlockInstance conditionally marks an active instance blocked.
func (s *PostgresStore) BlockInstance(ctx context.Context, instanceID, fromStageID string) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE workflow_instances SET status = 'blocked'
		 WHERE id = $1 AND current_stage_id = $2 AND status = 'active'`,
		instanceID, fromStageID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, instanceID)
	}
	return nil
}

func (s *PostgresStore) staleOrMissing(ctx context.Context, instanceID string) error {
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`, instanceID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrInstanceNotFound
	}
	return ErrStaleInstance
}

// CreateAssignment persists a new stage assignment.
func (s *PostgresStore) CreateAssignment(ctx context.Context, a *models.StageAssignment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_stage_assignments
		 (id, instance_id, stage_id, assigned_user, assigned_by, status, action_taken, notes, started_at, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.InstanceID, a.StageID, a.AssignedUser, a.AssignedBy,
		a.Status, a.ActionTaken, a.Notes, a.StartedAt, a.CompletedAt, a.CreatedAt)
	return err
}

// GetAssignment returns a single assignment row.
func (s *PostgresStore) GetAssignment(ctx context.Context, id string) (*models.StageAssignment, error) {
	var a models.StageAssignment
	err := s.db.QueryRow(ctx,
		`SELECT id, instance_id, stage_id, assigned_user, assigned_by, status, action_taken, notes, started_at, completed_at, created_at
		 FROM workflow_stage_assignments WHERE id = $1`, id).
		Scan(&a.ID, &a.InstanceID, &a.StageID, &a.AssignedUser, &a.AssignedBy,
			&a.Status, &a.ActionTaken, &a.Notes, &a.StartedAt, &a.CompletedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CompleteAssignment transitions a pending assignment to completed. The
// status guard makes double submissions observable as ErrStaleAssignment.
func (s *PostgresStore) CompleteAssignment(ctx context.Context, a *models.StageAssignment) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE workflow_stage_assignments
		 SET status = 'completed', action_taken = $1, notes = $2, started_at = $3, completed_at = $4
		 WHERE id = $5 AND status = 'pending'`,
		a.ActionTaken, a.Notes, a.StartedAt, a.CompletedAt, a.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflow_stage_assignments WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrAssignmentNotFound
		}
		return ErrStaleAssignment
	}
	return nil
}

// CountApprovals counts completed-and-approved assignments for a stage of
// an instance.
func (s *PostgresStore) CountApprovals(ctx context.Context, instanceID, stageID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM workflow_stage_assignments
		 WHERE instance_id = $1 AND stage_id = $2 AND status = 'completed' AND action_taken = 'approved'`,
		instanceID, stageID).Scan(&n)
	return n, err
}

// ListInstanceAssignments returns the assignment history joined with stage
// and assignee names.
func (s *PostgresStore) ListInstanceAssignments(ctx context.Context, instanceID string) ([]*models.AssignmentView, error) {
	rows, err := s.db.Query(ctx,
		`SELECT a.id, a.instance_id, a.stage_id, a.assigned_user, a.assigned_by, a.status, a.action_taken, a.notes, a.started_at, a.completed_at, a.created_at,
		        s.stage_name, s.stage_order, COALESCE(u.full_name, '')
		 FROM workflow_stage_assignments a
		 JOIN workflow_stages s ON s.id = a.stage_id
		 LEFT JOIN users u ON u.id = a.assigned_user
		 WHERE a.instance_id = $1
		 ORDER BY s.stage_order, a.created_at`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*models.AssignmentView
	for rows.Next() {
		var a models.StageAssignment
		v := &models.AssignmentView{StageAssignment: &a}
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.StageID, &a.AssignedUser, &a.AssignedBy,
			&a.Status, &a.ActionTaken, &a.Notes, &a.StartedAt, &a.CompletedAt, &a.CreatedAt,
			&v.StageName, &v.StageOrder, &v.AssigneeName); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListUserTasks returns a reviewer's worklist ordered by instance priority
// descending then due date ascending.
func (s *PostgresStore) ListUserTasks(ctx context.Context, userID string, status models.AssignmentStatus) ([]*models.TaskView, error) {
	rows, err := s.db.Query(ctx,
		`SELECT a.id, a.instance_id, a.stage_id, a.assigned_user, a.assigned_by, a.status, a.action_taken, a.notes, a.started_at, a.completed_at, a.created_at,
		        s.stage_name, i.content_id, i.content_type, i.priority, i.due_date
		 FROM workflow_stage_assignments a
		 JOIN workflow_stages s ON s.id = a.stage_id
		 JOIN workflow_instances i ON i.id = a.instance_id
		 WHERE a.assigned_user = $1 AND a.status = $2
		 ORDER BY CASE i.priority
		     WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0
		   END DESC,
		   i.due_date ASC NULLS LAST, a.created_at`, userID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.TaskView
	for rows.Next() {
		var a models.StageAssignment
		t := &models.TaskView{StageAssignment: &a}
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.StageID, &a.AssignedUser, &a.AssignedBy,
			&a.Status, &a.ActionTaken, &a.Notes, &a.StartedAt, &a.CompletedAt, &a.CreatedAt,
			&t.StageName, &t.ContentID, &t.ContentType, &t.Priority, &t.DueDate); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateUser inserts a reviewer identity. Used by seed tooling and tests;
// the engine itself only reads users.
func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, username, email, full_name, role, department, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.Email, u.FullName, u.Role, u.Department, u.Status, u.CreatedAt)
	return err
}

// GetUser returns a user by id.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, email, full_name, role, department, status, created_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.Department, &u.Status, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListActiveUsersByRole returns active users holding the given role.
func (s *PostgresStore) ListActiveUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, username, email, full_name, role, department, status, created_at
		 FROM users WHERE role = $1 AND status = 'active' ORDER BY username`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.Department, &u.Status, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// GrantPermission inserts a grant; duplicates are no-ops.
func (s *PostgresStore) GrantPermission(ctx context.Context, g *models.PermissionGrant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_permissions (id, user_id, permission_type, resource_type, granted_by, granted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, permission_type, resource_type) DO NOTHING`,
		g.ID, g.UserID, g.PermissionType, g.ResourceType, g.GrantedBy, g.GrantedAt)
	return err
}

// HasPermission performs an exact-match lookup against the grant table.
func (s *PostgresStore) HasPermission(ctx context.Context, userID, permissionType, resourceType string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM user_permissions
		   WHERE user_id = $1 AND permission_type = $2 AND resource_type = $3
		 )`, userID, permissionType, resourceType).Scan(&ok)
	return ok, err
}
