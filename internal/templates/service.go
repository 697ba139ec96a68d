// Package templates validates and stores workflow template definitions.
package templates

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"approvalflow/backend/internal/repository"
	"approvalflow/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Service is the template store: validation at creation, ordered reads
// afterwards. Templates carry no update or delete operation for stages;
// once instances run against a template its stages are treated as frozen.
type Service struct {
	repo   repository.TemplateStore
	logger Logger
}

// NewService creates a template Service.
func NewService(repo repository.TemplateStore, logger Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateTemplate validates a template spec and persists it.
//
// Stage orders default to list position (index+1). Explicit orders must not
// collide within the batch and the final order set must be contiguous
// starting at 1. min_approvals defaults to 1 and must be >= 1; a
// non-parallel stage requiring more than one approval is rejected because
// the allocator can never produce enough assignments to satisfy it.
func (s *Service) CreateTemplate(ctx context.Context, req models.CreateTemplateRequest, createdBy string) (*models.WorkflowTemplate, error) {
	if req.Name == "" {
		return nil, models.NewValidationError("template name is required")
	}
	if req.ContentType == "" {
		return nil, models.NewValidationError("template content_type is required")
	}

	now := time.Now().UTC()
	tmpl := &models.WorkflowTemplate{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		ContentType: req.ContentType,
		CreatedBy:   createdBy,
		CreatedAt:   now,
	}

	seen := make(map[int]string, len(req.Stages))
	for i, spec := range req.Stages {
		if spec.StageName == "" {
			return nil, models.NewValidationError("stage %d is missing stage_name", i+1)
		}

		order := i + 1
		if spec.StageOrder != nil {
			order = *spec.StageOrder
		}
		if order < 1 {
			return nil, models.NewValidationError("stage %q has non-positive order %d", spec.StageName, order)
		}
		if prev, dup := seen[order]; dup {
			return nil, models.NewValidationError("stage order %d requested by both %q and %q", order, prev, spec.StageName)
		}
		seen[order] = spec.StageName

		minApprovals := 1
		if spec.MinApprovals != nil {
			minApprovals = *spec.MinApprovals
		}
		if minApprovals < 1 {
			return nil, models.NewValidationError("stage %q has min_approvals %d, must be at least 1", spec.StageName, minApprovals)
		}
		if !spec.ParallelReview && minApprovals > 1 {
			return nil, models.NewValidationError(
				"stage %q requires %d approvals but parallel_review is disabled, quorum would be unreachable",
				spec.StageName, minApprovals)
		}

		autoAdvance := true
		if spec.AutoAdvance != nil {
			autoAdvance = *spec.AutoAdvance
		}

		tmpl.Stages = append(tmpl.Stages, &models.WorkflowStage{
			ID:             uuid.New().String(),
			TemplateID:     tmpl.ID,
			StageOrder:     order,
			Name:           spec.StageName,
			StageType:      spec.StageType,
			RequiredRole:   spec.RequiredRole,
			AutoAdvance:    autoAdvance,
			ParallelReview: spec.ParallelReview,
			MinApprovals:   minApprovals,
			CreatedAt:      now,
		})
	}

	sort.Slice(tmpl.Stages, func(i, j int) bool {
		return tmpl.Stages[i].StageOrder < tmpl.Stages[j].StageOrder
	})
	for i, st := range tmpl.Stages {
		if st.StageOrder != i+1 {
			return nil, models.NewValidationError(
				"stage orders must be contiguous starting at 1, gap before order %d", st.StageOrder)
		}
	}

	if err := s.repo.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}

	s.logger.Info("template created", "template_id", tmpl.ID, "name", tmpl.Name, "stages", len(tmpl.Stages))
	return tmpl, nil
}

// GetTemplate returns a template with its stages in order.
func (s *Service) GetTemplate(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return s.repo.GetTemplate(ctx, id)
}

// ListTemplates returns templates ordered by name, filtered by content type
// when one is given.
func (s *Service) ListTemplates(ctx context.Context, contentType string) ([]*models.WorkflowTemplate, error) {
	return s.repo.ListTemplates(ctx, contentType)
}
