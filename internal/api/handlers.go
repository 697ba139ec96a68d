// Package api contains the HTTP handlers for the approval-workflow service
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"approvalflow/backend/internal/engine"
	"approvalflow/backend/internal/permissions"
	"approvalflow/backend/internal/repository"
	"approvalflow/backend/internal/tasks"
	"approvalflow/backend/internal/templates"
	"approvalflow/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Templates *templates.Service
	Engine    *engine.Engine
	Tasks     *tasks.Service
	Gate      *permissions.Gate
}

// NewServer creates a new Server.
func NewServer(tmpl *templates.Service, eng *engine.Engine, tq *tasks.Service, gate *permissions.Gate) *Server {
	return &Server{Templates: tmpl, Engine: eng, Tasks: tq, Gate: gate}
}

// HandleHealth returns basic health status (always returns 200 OK)
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthStatus{
		Status:    "ok",
		Service:   "approvalflow",
		Version:   "1.0.0",
		Timestamp: time.Now(),
	})
}

// problem writes an RFC 7807 Problem Details JSON error response.
func problem(c echo.Context, status int, title, detail string) error {
	p := models.ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, p)
}

// writeDomainError maps the engine error taxonomy onto HTTP statuses.
func writeDomainError(c echo.Context, err error) error {
	var (
		validationErr   *models.ValidationError
		unauthorizedErr *models.UnauthorizedError
		conflictErr     *models.ConflictError
	)

	switch {
	case errors.Is(err, repository.ErrTemplateNotFound),
		errors.Is(err, repository.ErrStageNotFound),
		errors.Is(err, repository.ErrInstanceNotFound),
		errors.Is(err, repository.ErrAssignmentNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return problem(c, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &validationErr):
		return problem(c, http.StatusBadRequest, "Validation Error", validationErr.Detail)
	case errors.As(err, &unauthorizedErr):
		return problem(c, http.StatusForbidden, "Forbidden", unauthorizedErr.Detail)
	case errors.As(err, &conflictErr):
		return problem(c, http.StatusConflict, "Conflict", conflictErr.Detail)
	default:
		return problem(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}
