package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"approvalflow/backend/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}

	store := NewPostgresStore(pool)
	now := time.Now().UTC()

	creator := &models.User{
		ID:        uuid.New().String(),
		Username:  "mwillis",
		Email:     "mwillis@example.org",
		FullName:  "Morgan Willis",
		Role:      "editor",
		Status:    models.UserStatusActive,
		CreatedAt: now,
	}
	require.NoError(t, store.CreateUser(ctx, creator))

	reviewer := &models.User{
		ID:        uuid.New().String(),
		Username:  "dcheng",
		Email:     "dcheng@example.org",
		FullName:  "Dana Cheng",
		Role:      "legal",
		Status:    models.UserStatusActive,
		CreatedAt: now,
	}
	require.NoError(t, store.CreateUser(ctx, reviewer))

	tmpl := &models.WorkflowTemplate{
		ID:          uuid.New().String(),
		Name:        "Press Release Review",
		Description: "Editorial pass then legal sign-off.",
		ContentType: "press_release",
		CreatedBy:   creator.ID,
		CreatedAt:   now,
	}
	editorRole := models.Role("editor")
	legalRole := models.Role("legal")
	tmpl.Stages = []*models.WorkflowStage{
		{
			ID: uuid.New().String(), TemplateID: tmpl.ID, StageOrder: 1,
			Name: "Editorial Review", StageType: "review", RequiredRole: &editorRole,
			AutoAdvance: true, MinApprovals: 1, CreatedAt: now,
		},
		{
			ID: uuid.New().String(), TemplateID: tmpl.ID, StageOrder: 2,
			Name: "Legal Sign-off", StageType: "legal", RequiredRole: &legalRole,
			AutoAdvance: true, ParallelReview: true, MinApprovals: 2, CreatedAt: now,
		},
	}

	t.Run("template round trip", func(t *testing.T) {
		require.NoError(t, store.CreateTemplate(ctx, tmpl))

		got, err := store.GetTemplate(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, tmpl.Name, got.Name)
		require.Len(t, got.Stages, 2)
		assert.Equal(t, "Editorial Review", got.Stages[0].Name)
		assert.Equal(t, 2, got.Stages[1].MinApprovals)
		assert.True(t, got.Stages[1].ParallelReview)
		require.NotNil(t, got.Stages[1].RequiredRole)
		assert.Equal(t, legalRole, *got.Stages[1].RequiredRole)

		_, err = store.GetTemplate(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("list templates filtered", func(t *testing.T) {
		all, err := store.ListTemplates(ctx, "press_release")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Len(t, all[0].Stages, 2)

		none, err := store.ListTemplates(ctx, "blog_post")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	inst := &models.WorkflowInstance{
		ID:             uuid.New().String(),
		TemplateID:     tmpl.ID,
		ContentID:      "pr-2026-03",
		ContentType:    "press_release",
		CurrentStageID: &tmpl.Stages[0].ID,
		Status:         models.InstanceStatusActive,
		Priority:       models.PriorityHigh,
		InitiatedBy:    creator.ID,
		Metadata:       map[string]any{"campaign": "spring-launch"},
		CreatedAt:      now,
	}

	t.Run("instance round trip with metadata", func(t *testing.T) {
		require.NoError(t, store.CreateInstance(ctx, inst))

		got, err := store.GetInstance(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusActive, got.Status)
		require.NotNil(t, got.CurrentStageID)
		assert.Equal(t, tmpl.Stages[0].ID, *got.CurrentStageID)
		assert.Equal(t, "spring-launch", got.Metadata["campaign"])
	})

	assignment := &models.StageAssignment{
		ID:           uuid.New().String(),
		InstanceID:   inst.ID,
		StageID:      tmpl.Stages[0].ID,
		AssignedUser: creator.ID,
		AssignedBy:   creator.ID,
		Status:       models.AssignmentStatusPending,
		CreatedAt:    now,
	}

	t.Run("assignment lifecycle", func(t *testing.T) {
		require.NoError(t, store.CreateAssignment(ctx, assignment))

		approved := models.ActionApproved
		notes := "looks good"
		done := *assignment
		done.ActionTaken = &approved
		done.Notes = &notes
		done.StartedAt = &now
		done.CompletedAt = &now
		require.NoError(t, store.CompleteAssignment(ctx, &done))

		got, err := store.GetAssignment(ctx, assignment.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AssignmentStatusCompleted, got.Status)
		require.NotNil(t, got.ActionTaken)
		assert.Equal(t, models.ActionApproved, *got.ActionTaken)

		// conditional update refuses a second completion
		err = store.CompleteAssignment(ctx, &done)
		assert.ErrorIs(t, err, ErrStaleAssignment)

		n, err := store.CountApprovals(ctx, inst.ID, tmpl.Stages[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("conditional advance", func(t *testing.T) {
		require.NoError(t, store.AdvanceStage(ctx, inst.ID, tmpl.Stages[0].ID, &tmpl.Stages[1].ID, now))

		// repeating the same transition no longer matches
		err := store.AdvanceStage(ctx, inst.ID, tmpl.Stages[0].ID, &tmpl.Stages[1].ID, now)
		assert.ErrorIs(t, err, ErrStaleInstance)

		got, err := store.GetInstance(ctx, inst.ID)
		require.NoError(t, err)
		require.NotNil(t, got.CurrentStageID)
		assert.Equal(t, tmpl.Stages[1].ID, *got.CurrentStageID)
	})

	t.Run("block and terminal completion", func(t *testing.T) {
		require.NoError(t, store.BlockInstance(ctx, inst.ID, tmpl.Stages[1].ID))

		err := store.AdvanceStage(ctx, inst.ID, tmpl.Stages[1].ID, nil, now)
		assert.ErrorIs(t, err, ErrStaleInstance)

		got, err := store.GetInstance(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusBlocked, got.Status)
	})

	t.Run("user tasks", func(t *testing.T) {
		pending := &models.StageAssignment{
			ID:           uuid.New().String(),
			InstanceID:   inst.ID,
			StageID:      tmpl.Stages[1].ID,
			AssignedUser: reviewer.ID,
			AssignedBy:   creator.ID,
			Status:       models.AssignmentStatusPending,
			CreatedAt:    now,
		}
		require.NoError(t, store.CreateAssignment(ctx, pending))

		tasks, err := store.ListUserTasks(ctx, reviewer.ID, models.AssignmentStatusPending)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "pr-2026-03", tasks[0].ContentID)
		assert.Equal(t, "Legal Sign-off", tasks[0].StageName)
		assert.Equal(t, models.PriorityHigh, tasks[0].Priority)
	})

	t.Run("instance assignment history", func(t *testing.T) {
		views, err := store.ListInstanceAssignments(ctx, inst.ID)
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, 1, views[0].StageOrder)
		assert.Equal(t, "Morgan Willis", views[0].AssigneeName)
		assert.Equal(t, 2, views[1].StageOrder)
	})

	t.Run("active users by role", func(t *testing.T) {
		inactive := &models.User{
			ID:        uuid.New().String(),
			Username:  "former",
			Email:     "former@example.org",
			FullName:  "Former Counsel",
			Role:      "legal",
			Status:    models.UserStatusInactive,
			CreatedAt: now,
		}
		require.NoError(t, store.CreateUser(ctx, inactive))

		legal, err := store.ListActiveUsersByRole(ctx, "legal")
		require.NoError(t, err)
		require.Len(t, legal, 1)
		assert.Equal(t, "dcheng", legal[0].Username)
	})

	t.Run("permission grant idempotent", func(t *testing.T) {
		grant := &models.PermissionGrant{
			ID:             uuid.New().String(),
			UserID:         creator.ID,
			PermissionType: "start",
			ResourceType:   "workflow_instance",
			GrantedBy:      creator.ID,
			GrantedAt:      now,
		}
		require.NoError(t, store.GrantPermission(ctx, grant))

		dup := *grant
		dup.ID = uuid.New().String()
		require.NoError(t, store.GrantPermission(ctx, &dup))

		ok, err := store.HasPermission(ctx, creator.ID, "start", "workflow_instance")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.HasPermission(ctx, creator.ID, "start", "workflow_template")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
