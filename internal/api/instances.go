package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"approvalflow/backend/internal/auth"
	"approvalflow/backend/pkg/models"
)

// StartWorkflow starts an instance from a template
// (POST /api/v1/workflows)
func (s *Server) StartWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := auth.UserFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "acting user not found in context")
	}

	allowed, err := s.Gate.HasPermission(ctx, actor.ID, "start", "workflow_instance")
	if err != nil {
		return writeDomainError(c, err)
	}
	if !allowed {
		return problem(c, http.StatusForbidden, "Forbidden", "user may not start workflows")
	}

	var req models.StartWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}

	detail, err := s.Engine.StartWorkflow(ctx, req, actor.ID)
	if err != nil {
		return writeDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, detail)
}

// GetWorkflow returns the current state of an instance
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	detail, err := s.Tasks.InstanceState(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// AdvanceWorkflow explicitly advances a satisfied stage that does not
// auto-advance
// (POST /api/v1/workflows/:id/advance)
func (s *Server) AdvanceWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := auth.UserFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "acting user not found in context")
	}

	allowed, err := s.Gate.HasPermission(ctx, actor.ID, "advance", "workflow_instance")
	if err != nil {
		return writeDomainError(c, err)
	}
	if !allowed {
		return problem(c, http.StatusForbidden, "Forbidden", "user may not advance workflows")
	}

	detail, err := s.Engine.AdvanceStage(ctx, c.Param("id"))
	if err != nil {
		return writeDomainError(c, err)
	}

	return c.JSON(http.StatusOK, detail)
}

// AssignStage manually assigns a reviewer to a stage
// (POST /api/v1/assignments)
func (s *Server) AssignStage(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := auth.UserFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "acting user not found in context")
	}

	allowed, err := s.Gate.HasPermission(ctx, actor.ID, "assign", "workflow_instance")
	if err != nil {
		return writeDomainError(c, err)
	}
	if !allowed {
		return problem(c, http.StatusForbidden, "Forbidden", "user may not assign reviewers")
	}

	var req models.AssignStageRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}

	assignment, err := s.Engine.AssignStage(ctx, req.InstanceID, req.StageID, req.UserID, actor.ID)
	if err != nil {
		return writeDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, assignment)
}

// CompleteAssignment records the acting user's decision on their task
// (POST /api/v1/assignments/:id/complete)
func (s *Server) CompleteAssignment(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := auth.UserFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "acting user not found in context")
	}

	var req models.CompleteAssignmentRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}

	detail, err := s.Engine.CompleteStage(ctx, c.Param("id"), actor.ID, req.Action, req.Notes)
	if err != nil {
		return writeDomainError(c, err)
	}

	return c.JSON(http.StatusOK, detail)
}

// ListMyTasks returns the acting user's worklist
// (GET /api/v1/tasks?status=)
func (s *Server) ListMyTasks(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := auth.UserFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "acting user not found in context")
	}

	status := models.AssignmentStatus(c.QueryParam("status"))
	tasks, err := s.Tasks.UserTasks(ctx, actor.ID, status)
	if err != nil {
		return writeDomainError(c, err)
	}
	if tasks == nil {
		tasks = []*models.TaskView{}
	}

	return c.JSON(http.StatusOK, tasks)
}
