package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the idempotent DDL for the workflow tables. Applied at server
// startup and by integration tests; safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	full_name TEXT NOT NULL,
	role TEXT NOT NULL,
	department TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_templates (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL,
	created_by UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_stages (
	id UUID PRIMARY KEY,
	template_id UUID NOT NULL REFERENCES workflow_templates(id),
	stage_order INT NOT NULL CHECK (stage_order > 0),
	stage_name TEXT NOT NULL,
	stage_type TEXT NOT NULL,
	required_role TEXT,
	auto_advance BOOLEAN NOT NULL DEFAULT true,
	parallel_review BOOLEAN NOT NULL DEFAULT false,
	min_approvals INT NOT NULL DEFAULT 1 CHECK (min_approvals >= 1),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (template_id, stage_order)
);

CREATE TABLE IF NOT EXISTS workflow_instances (
	id UUID PRIMARY KEY,
	template_id UUID NOT NULL REFERENCES workflow_templates(id),
	content_id TEXT NOT NULL,
	content_type TEXT NOT NULL,
	current_stage_id UUID REFERENCES workflow_stages(id),
	status TEXT NOT NULL DEFAULT 'active',
	priority TEXT NOT NULL DEFAULT 'medium',
	initiated_by UUID NOT NULL,
	due_date TIMESTAMPTZ,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS workflow_stage_assignments (
	id UUID PRIMARY KEY,
	instance_id UUID NOT NULL REFERENCES workflow_instances(id),
	stage_id UUID NOT NULL REFERENCES workflow_stages(id),
	assigned_user UUID NOT NULL,
	assigned_by UUID NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	action_taken TEXT,
	notes TEXT,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_assignments_user_status
	ON workflow_stage_assignments (assigned_user, status);
CREATE INDEX IF NOT EXISTS idx_assignments_instance_stage
	ON workflow_stage_assignments (instance_id, stage_id);

CREATE TABLE IF NOT EXISTS user_permissions (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	permission_type TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	granted_by UUID NOT NULL,
	granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, permission_type, resource_type)
);
`

// Migrate applies the schema to the given pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
