// Package engine owns the workflow instance lifecycle: creation, stage
// transition, quorum evaluation, blocking and completion.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"approvalflow/backend/internal/allocator"
	"approvalflow/backend/internal/repository"
	"approvalflow/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Engine drives instances through their template's stages. All state lives
// in the injected repository; the engine itself only holds per-instance
// locks that serialize quorum evaluation.
type Engine struct {
	repo    repository.Repository
	alloc   *allocator.Allocator
	logger  Logger
	metrics *engineMetrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine.
func New(repo repository.Repository, alloc *allocator.Allocator, logger Logger) *Engine {
	return &Engine{
		repo:    repo,
		alloc:   alloc,
		logger:  logger,
		metrics: newEngineMetrics(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// instanceLock returns the mutex serializing mutations of one instance.
// Completing two assignments of the same stage concurrently must evaluate
// quorum one at a time; the repository's conditional updates are the
// backstop if another process races us.
func (e *Engine) instanceLock(instanceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[instanceID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[instanceID] = l
	}
	return l
}

// StartWorkflow creates an instance from a template, places it on the first
// stage and triggers auto-assignment for that stage.
func (e *Engine) StartWorkflow(ctx context.Context, req models.StartWorkflowRequest, initiatedBy string) (*models.InstanceDetail, error) {
	tmpl, err := e.repo.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	first := tmpl.FirstStage()
	if first == nil {
		return nil, models.NewValidationError("template %q has no stages", tmpl.Name)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = tmpl.ContentType
	}

	inst := &models.WorkflowInstance{
		ID:             uuid.New().String(),
		TemplateID:     tmpl.ID,
		ContentID:      req.ContentID,
		ContentType:    contentType,
		CurrentStageID: &first.ID,
		Status:         models.InstanceStatusActive,
		Priority:       priority,
		InitiatedBy:    initiatedBy,
		DueDate:        req.DueDate,
		Metadata:       req.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.repo.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}

	if _, err := e.alloc.AutoAssign(ctx, inst, first); err != nil {
		return nil, err
	}

	e.metrics.started(ctx)
	e.logger.Info("workflow started",
		"instance_id", inst.ID, "template", tmpl.Name, "content_id", inst.ContentID)

	return e.GetInstance(ctx, inst.ID)
}

// CompleteStage records a reviewer's decision on an assignment and applies
// its consequences: rejection blocks the instance immediately; approval is
// counted toward the stage's quorum and may advance the instance.
func (e *Engine) CompleteStage(ctx context.Context, assignmentID, userID string, action models.ReviewAction, notes string) (*models.InstanceDetail, error) {
	if !action.Valid() {
		return nil, models.NewValidationError("unknown review action %q", action)
	}

	assignment, err := e.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.AssignedUser != userID {
		return nil, models.NewUnauthorizedError("assignment %s does not belong to user %s", assignmentID, userID)
	}

	lock := e.instanceLock(assignment.InstanceID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: another submission may have completed this
	// assignment while we waited.
	assignment, err = e.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.Status != models.AssignmentStatusPending {
		return nil, models.NewConflictError("assignment %s is already completed", assignmentID)
	}

	now := time.Now().UTC()
	assignment.ActionTaken = &action
	if notes != "" {
		assignment.Notes = &notes
	}
	if assignment.StartedAt == nil {
		assignment.StartedAt = &now
	}
	assignment.CompletedAt = &now

	if err := e.repo.CompleteAssignment(ctx, assignment); err != nil {
		if errors.Is(err, repository.ErrStaleAssignment) {
			return nil, models.NewConflictError("assignment %s is already completed", assignmentID)
		}
		return nil, err
	}

	switch action {
	case models.ActionRejected:
		err = e.blockInstance(ctx, assignment)
	case models.ActionApproved:
		err = e.evaluateQuorum(ctx, assignment)
	}
	if err != nil {
		return nil, err
	}

	return e.GetInstance(ctx, assignment.InstanceID)
}

// blockInstance applies a rejection veto. A rejection recorded against a
// stage the instance has already left (or while already blocked) does not
// retroactively change instance state; the completed assignment itself
// remains in the audit trail.
func (e *Engine) blockInstance(ctx context.Context, assignment *models.StageAssignment) error {
	err := e.repo.BlockInstance(ctx, assignment.InstanceID, assignment.StageID)
	if err != nil {
		if errors.Is(err, repository.ErrStaleInstance) {
			e.logger.Warn("rejection recorded against non-current stage, instance state unchanged",
				"instance_id", assignment.InstanceID, "stage_id", assignment.StageID)
			return nil
		}
		return err
	}

	e.metrics.blocked(ctx)
	e.logger.Info("workflow blocked by rejection",
		"instance_id", assignment.InstanceID, "stage_id", assignment.StageID, "rejected_by", assignment.AssignedUser)
	return nil
}

// evaluateQuorum checks whether the stage just approved has reached its
// quorum and, if the stage auto-advances, moves the instance forward.
func (e *Engine) evaluateQuorum(ctx context.Context, assignment *models.StageAssignment) error {
	inst, err := e.repo.GetInstance(ctx, assignment.InstanceID)
	if err != nil {
		return err
	}

	// An approval for a stage the instance already left (or for a blocked
	// instance) counts in history but triggers nothing.
	if inst.Status != models.InstanceStatusActive ||
		inst.CurrentStageID == nil || *inst.CurrentStageID != assignment.StageID {
		return nil
	}

	tmpl, err := e.repo.GetTemplate(ctx, inst.TemplateID)
	if err != nil {
		return err
	}
	stage := tmpl.StageByID(assignment.StageID)
	if stage == nil {
		return repository.ErrStageNotFound
	}

	approvals, err := e.repo.CountApprovals(ctx, inst.ID, stage.ID)
	if err != nil {
		return err
	}
	if approvals < stage.MinApprovals {
		e.logger.Debug("stage quorum not yet reached",
			"instance_id", inst.ID, "stage", stage.Name, "approvals", approvals, "required", stage.MinApprovals)
		return nil
	}

	if !stage.AutoAdvance {
		e.logger.Info("stage quorum reached, awaiting explicit advance",
			"instance_id", inst.ID, "stage", stage.Name)
		return nil
	}

	return e.advanceToNextStage(ctx, inst, tmpl, stage)
}

// advanceToNextStage moves the instance to the stage after the given one,
// or completes it when the given stage was the last. The repository update
// is conditional on the instance still sitting on the given stage, so a
// concurrent advance surfaces as a conflict instead of a double-move.
func (e *Engine) advanceToNextStage(ctx context.Context, inst *models.WorkflowInstance, tmpl *models.WorkflowTemplate, from *models.WorkflowStage) error {
	now := time.Now().UTC()
	next := tmpl.StageAfter(from.StageOrder)

	if next == nil {
		if err := e.repo.AdvanceStage(ctx, inst.ID, from.ID, nil, now); err != nil {
			if errors.Is(err, repository.ErrStaleInstance) {
				return models.NewConflictError("instance %s was advanced concurrently", inst.ID)
			}
			return err
		}
		e.metrics.completed(ctx)
		e.logger.Info("workflow completed", "instance_id", inst.ID, "final_stage", from.Name)
		return nil
	}

	if err := e.repo.AdvanceStage(ctx, inst.ID, from.ID, &next.ID, now); err != nil {
		if errors.Is(err, repository.ErrStaleInstance) {
			return models.NewConflictError("instance %s was advanced concurrently", inst.ID)
		}
		return err
	}

	e.metrics.advanced(ctx)
	e.logger.Info("workflow advanced",
		"instance_id", inst.ID, "from_stage", from.Name, "to_stage", next.Name)

	if _, err := e.alloc.AutoAssign(ctx, inst, next); err != nil {
		return err
	}
	return nil
}

// AdvanceStage is the explicit transition for stages with auto_advance
// disabled: the caller confirms a satisfied stage should move on. The
// quorum is re-checked; an unsatisfied stage is a validation error.
func (e *Engine) AdvanceStage(ctx context.Context, instanceID string) (*models.InstanceDetail, error) {
	lock := e.instanceLock(instanceID)
	lock.Lock()
	defer lock.Unlock()

	inst, err := e.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.InstanceStatusActive || inst.CurrentStageID == nil {
		return nil, models.NewConflictError("instance %s is not active", instanceID)
	}

	tmpl, err := e.repo.GetTemplate(ctx, inst.TemplateID)
	if err != nil {
		return nil, err
	}
	stage := tmpl.StageByID(*inst.CurrentStageID)
	if stage == nil {
		return nil, repository.ErrStageNotFound
	}

	approvals, err := e.repo.CountApprovals(ctx, inst.ID, stage.ID)
	if err != nil {
		return nil, err
	}
	if approvals < stage.MinApprovals {
		return nil, models.NewValidationError("stage %q has %d of %d required approvals", stage.Name, approvals, stage.MinApprovals)
	}

	if err := e.advanceToNextStage(ctx, inst, tmpl, stage); err != nil {
		return nil, err
	}

	return e.GetInstance(ctx, instanceID)
}

// GetInstance assembles the full read-side view of an instance: the row,
// the current stage detail and the ordered assignment history.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*models.InstanceDetail, error) {
	inst, err := e.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	detail := &models.InstanceDetail{WorkflowInstance: inst}

	if inst.CurrentStageID != nil {
		tmpl, err := e.repo.GetTemplate(ctx, inst.TemplateID)
		if err != nil {
			return nil, err
		}
		detail.CurrentStage = tmpl.StageByID(*inst.CurrentStageID)
	}

	assignments, err := e.repo.ListInstanceAssignments(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	detail.Assignments = assignments

	return detail, nil
}

// AssignStage exposes manual assignment through the engine so callers deal
// with one mutation surface.
func (e *Engine) AssignStage(ctx context.Context, instanceID, stageID, userID, assignedBy string) (*models.StageAssignment, error) {
	return e.alloc.AssignStage(ctx, instanceID, stageID, userID, assignedBy)
}
