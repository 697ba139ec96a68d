package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"approvalflow/backend/internal/auth"
	"approvalflow/backend/pkg/models"
)

// CreateTemplate creates a workflow template with its stages
// (POST /api/v1/templates)
func (s *Server) CreateTemplate(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := auth.UserFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "acting user not found in context")
	}

	allowed, err := s.Gate.HasPermission(ctx, actor.ID, "create", "workflow_template")
	if err != nil {
		return writeDomainError(c, err)
	}
	if !allowed {
		return problem(c, http.StatusForbidden, "Forbidden", "user may not create templates")
	}

	var req models.CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}

	tmpl, err := s.Templates.CreateTemplate(ctx, req, actor.ID)
	if err != nil {
		return writeDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, tmpl)
}

// GetTemplate returns a template with stages ordered
// (GET /api/v1/templates/:id)
func (s *Server) GetTemplate(c echo.Context) error {
	tmpl, err := s.Templates.GetTemplate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, tmpl)
}

// ListTemplates returns templates, filtered by content_type when given
// (GET /api/v1/templates)
func (s *Server) ListTemplates(c echo.Context) error {
	list, err := s.Templates.ListTemplates(c.Request().Context(), c.QueryParam("content_type"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}
