package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"approvalflow/backend/internal/auth"
	"approvalflow/backend/pkg/models"
)

// CheckPermission answers an exact-match permission lookup
// (GET /api/v1/permissions/check?user_id=&permission_type=&resource_type=)
func (s *Server) CheckPermission(c echo.Context) error {
	userID := c.QueryParam("user_id")
	permissionType := c.QueryParam("permission_type")
	resourceType := c.QueryParam("resource_type")
	if userID == "" || permissionType == "" || resourceType == "" {
		return problem(c, http.StatusBadRequest, "Bad Request",
			"user_id, permission_type and resource_type query parameters are required")
	}

	allowed, err := s.Gate.HasPermission(c.Request().Context(), userID, permissionType, resourceType)
	if err != nil {
		return writeDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"allowed": allowed})
}

// GrantPermission records a grant; duplicates are no-ops
// (POST /api/v1/permissions)
func (s *Server) GrantPermission(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := auth.UserFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "acting user not found in context")
	}

	allowed, err := s.Gate.HasPermission(ctx, actor.ID, "grant", "permission")
	if err != nil {
		return writeDomainError(c, err)
	}
	if !allowed {
		return problem(c, http.StatusForbidden, "Forbidden", "user may not grant permissions")
	}

	var req models.GrantPermissionRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}

	grant, err := s.Gate.GrantPermission(ctx, req.UserID, req.PermissionType, req.ResourceType, actor.ID)
	if err != nil {
		return writeDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, grant)
}
