// Package permissions implements the binary permission grant table.
package permissions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"approvalflow/backend/internal/repository"
	"approvalflow/backend/pkg/models"
)

// Gate answers "may user U perform permission P on resource type R". It is
// consulted by callers before engine mutations; the engine itself does not
// enforce it.
type Gate struct {
	repo repository.PermissionStore
}

// NewGate creates a Gate.
func NewGate(repo repository.PermissionStore) *Gate {
	return &Gate{repo: repo}
}

// HasPermission is an exact-match lookup. No hierarchy, no wildcards.
func (g *Gate) HasPermission(ctx context.Context, userID, permissionType, resourceType string) (bool, error) {
	return g.repo.HasPermission(ctx, userID, permissionType, resourceType)
}

// GrantPermission records a grant. Granting twice is a no-op, not an error.
func (g *Gate) GrantPermission(ctx context.Context, userID, permissionType, resourceType, grantedBy string) (*models.PermissionGrant, error) {
	if userID == "" || permissionType == "" || resourceType == "" {
		return nil, models.NewValidationError("user_id, permission_type and resource_type are all required")
	}

	grant := &models.PermissionGrant{
		ID:             uuid.New().String(),
		UserID:         userID,
		PermissionType: permissionType,
		ResourceType:   resourceType,
		GrantedBy:      grantedBy,
		GrantedAt:      time.Now().UTC(),
	}
	if err := g.repo.GrantPermission(ctx, grant); err != nil {
		return nil, err
	}
	return grant, nil
}
