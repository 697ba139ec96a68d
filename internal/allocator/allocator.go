// Package allocator creates stage assignments for workflow instances.
package allocator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

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

// Allocator selects reviewers for stages and records the resulting
// assignments. Selection is delegated to a SelectionStrategy so the
// spreading policy can be swapped without touching the engine.
type Allocator struct {
	repo     repository.Repository
	strategy SelectionStrategy
	logger   Logger
	stalls   metric.Int64Counter
}

// New creates an Allocator. A nil strategy defaults to random selection.
func New(repo repository.Repository, strategy SelectionStrategy, logger Logger) *Allocator {
	if strategy == nil {
		strategy = NewRandomStrategy()
	}

	meter := otel.Meter("approvalflow/allocator")
	stalls, _ := meter.Int64Counter("allocator.stalls",
		metric.WithDescription("Stages left unassigned because no eligible reviewer exists"))

	return &Allocator{
		repo:     repo,
		strategy: strategy,
		logger:   logger,
		stalls:   stalls,
	}
}

// AutoAssign assigns a reviewer to the given stage of the given instance.
//
// Stages without a required role are skipped entirely: manual assignment is
// expected for them. When the role matches no active user the stage is left
// unassigned and the stall is logged and counted; the instance stays active
// and recovers only through a manual AssignStage call. Auto-assignment
// creates exactly one assignment regardless of parallel_review; the flag
// only permits additional manual assignments to coexist.
func (a *Allocator) AutoAssign(ctx context.Context, inst *models.WorkflowInstance, stage *models.WorkflowStage) (*models.StageAssignment, error) {
	if stage.RequiredRole == nil {
		a.logger.Debug("stage has no required role, skipping auto-assignment",
			"instance_id", inst.ID, "stage", stage.Name)
		return nil, nil
	}

	eligible, err := a.repo.ListActiveUsersByRole(ctx, *stage.RequiredRole)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		a.logger.Warn("no eligible reviewers for stage, instance stalled",
			"instance_id", inst.ID, "stage", stage.Name, "required_role", string(*stage.RequiredRole))
		a.stalls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("required_role", string(*stage.RequiredRole))))
		return nil, nil
	}

	picked := a.strategy.Pick(eligible)

	assignment := &models.StageAssignment{
		ID:           uuid.New().String(),
		InstanceID:   inst.ID,
		StageID:      stage.ID,
		AssignedUser: picked.ID,
		AssignedBy:   inst.InitiatedBy,
		Status:       models.AssignmentStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.repo.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}

	a.logger.Info("stage auto-assigned",
		"instance_id", inst.ID, "stage", stage.Name, "assigned_user", picked.Username)
	return assignment, nil
}

// AssignStage creates an explicit, caller-driven assignment. Usable
// regardless of the stage's parallel_review flag; no uniqueness constraint
// prevents assigning the same user twice (caller concern).
func (a *Allocator) AssignStage(ctx context.Context, instanceID, stageID, userID, assignedBy string) (*models.StageAssignment, error) {
	inst, err := a.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	tmpl, err := a.repo.GetTemplate(ctx, inst.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl.StageByID(stageID) == nil {
		return nil, repository.ErrStageNotFound
	}

	user, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	assignment := &models.StageAssignment{
		ID:           uuid.New().String(),
		InstanceID:   inst.ID,
		StageID:      stageID,
		AssignedUser: user.ID,
		AssignedBy:   assignedBy,
		Status:       models.AssignmentStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.repo.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}

	a.logger.Info("stage manually assigned",
		"instance_id", inst.ID, "stage_id", stageID, "assigned_user", user.Username, "assigned_by", assignedBy)
	return assignment, nil
}
