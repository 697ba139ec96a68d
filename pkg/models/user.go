package models

import "time"

// User is a reviewer identity. Users are created externally; the engine
// only reads them when matching a stage's required role.
type User struct {
	ID         string     `json:"id" db:"id"`
	Username   string     `json:"username" db:"username"`
	Email      string     `json:"email" db:"email"`
	FullName   string     `json:"full_name" db:"full_name"`
	Role       Role       `json:"role" db:"role"`
	Department string     `json:"department,omitempty" db:"department"`
	Status     UserStatus `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// PermissionGrant is a (user, permission, resource type) tuple; presence
// implies grant. GrantedBy is recorded for audit only.
type PermissionGrant struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	PermissionType string    `json:"permission_type" db:"permission_type"`
	ResourceType   string    `json:"resource_type" db:"resource_type"`
	GrantedBy      string    `json:"granted_by" db:"granted_by"`
	GrantedAt      time.Time `json:"granted_at" db:"granted_at"`
}
