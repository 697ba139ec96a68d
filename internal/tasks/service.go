// Package tasks provides the read-side projections for reviewer worklists.
package tasks

import (
	"context"
	"sort"

	"approvalflow/backend/internal/repository"
	"approvalflow/backend/pkg/models"
)

// Service builds reviewer-facing views from the instance and assignment
// tables. It performs no mutations.
type Service struct {
	repo repository.Repository
}

// NewService creates a task query Service.
func NewService(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// UserTasks returns a user's assignments with the given status, ordered by
// instance priority descending then due date ascending. Status defaults to
// pending. The store already orders results; the service re-sorts so both
// store implementations present identical ordering.
func (s *Service) UserTasks(ctx context.Context, userID string, status models.AssignmentStatus) ([]*models.TaskView, error) {
	if status == "" {
		status = models.AssignmentStatusPending
	}

	tasks, err := s.repo.ListUserTasks(ctx, userID, status)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		wi, wj := tasks[i].Priority.Weight(), tasks[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		di, dj := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case di == nil && dj != nil:
			return false
		case di != nil && dj == nil:
			return true
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		}
		return false
	})

	return tasks, nil
}

// InstanceState returns the current state of an instance: the row, current
// stage detail and full ordered assignment history.
func (s *Service) InstanceState(ctx context.Context, instanceID string) (*models.InstanceDetail, error) {
	inst, err := s.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	detail := &models.InstanceDetail{WorkflowInstance: inst}

	if inst.CurrentStageID != nil {
		tmpl, err := s.repo.GetTemplate(ctx, inst.TemplateID)
		if err != nil {
			return nil, err
		}
		detail.CurrentStage = tmpl.StageByID(*inst.CurrentStageID)
	}

	assignments, err := s.repo.ListInstanceAssignments(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	detail.Assignments = assignments

	return detail, nil
}
