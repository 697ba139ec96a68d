package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"approvalflow/backend/internal/allocator"
	"approvalflow/backend/internal/logging"
	"approvalflow/backend/internal/repository"
	"approvalflow/backend/internal/templates"
	"approvalflow/backend/pkg/models"
)

func newTestEngine(t *testing.T) (*Engine, *repository.MemoryStore, *templates.Service) {
	t.Helper()
	repo := repository.NewMemoryStore()
	logger := logging.NewLogger()
	// Round-robin keeps reviewer selection deterministic in tests.
	alloc := allocator.New(repo, allocator.NewRoundRobinStrategy(), logger)
	eng := New(repo, alloc, logger)
	return eng, repo, templates.NewService(repo, logger)
}

func seedUser(t *testing.T, repo *repository.MemoryStore, username string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     username + "@example.org",
		FullName:  username,
		Role:      role,
		Status:    models.UserStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

// pressTemplate builds the canonical two-stage fixture: an editorial stage
// requiring one approval followed by a parallel legal stage requiring two.
func pressTemplate(t *testing.T, svc *templates.Service, createdBy string) *models.WorkflowTemplate {
	t.Helper()
	editor := models.Role("editor")
	legal := models.Role("legal")
	two := 2

	tmpl, err := svc.CreateTemplate(context.Background(), models.CreateTemplateRequest{
		Name:        "Press Release Review",
		ContentType: "press_release",
		Stages: []models.StageSpec{
			{StageName: "Editorial Review", StageType: "review", RequiredRole: &editor},
			{StageName: "Legal Sign-off", StageType: "legal", RequiredRole: &legal, ParallelReview: true, MinApprovals: &two},
		},
	}, createdBy)
	require.NoError(t, err)
	return tmpl
}

// pendingAssignmentFor returns the pending assignment of the given user on
// the given instance.
func pendingAssignmentFor(t *testing.T, eng *Engine, instanceID, userID string) *models.AssignmentView {
	t.Helper()
	detail, err := eng.GetInstance(context.Background(), instanceID)
	require.NoError(t, err)
	for _, a := range detail.Assignments {
		if a.AssignedUser == userID && a.Status == models.AssignmentStatusPending {
			return a
		}
	}
	t.Fatalf("no pending assignment for user %s on instance %s", userID, instanceID)
	return nil
}

func TestStartWorkflow(t *testing.T) {
	ctx := context.Background()
	eng, repo, svc := newTestEngine(t)

	editor := seedUser(t, repo, "editor1", "editor")
	seedUser(t, repo, "legal1", "legal")
	seedUser(t, repo, "legal2", "legal")
	tmpl := pressTemplate(t, svc, editor.ID)

	t.Run("unknown template", func(t *testing.T) {
		_, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
			TemplateID: uuid.New().String(),
			ContentID:  "pr-1",
		}, editor.ID)
		assert.ErrorIs(t, err, repository.ErrTemplateNotFound)
	})

	t.Run("starts on first stage and auto-assigns", func(t *testing.T) {
		detail, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
			TemplateID: tmpl.ID,
			ContentID:  "pr-1",
			Metadata:   map[string]any{"campaign": "spring-launch", "rev": float64(3)},
		}, editor.ID)
		require.NoError(t, err)

		assert.Equal(t, models.InstanceStatusActive, detail.Status)
		require.NotNil(t, detail.CurrentStage)
		assert.Equal(t, 1, detail.CurrentStage.StageOrder)
		assert.Equal(t, models.PriorityMedium, detail.Priority)
		assert.Nil(t, detail.CompletedAt)

		require.Len(t, detail.Assignments, 1)
		assert.Equal(t, editor.ID, detail.Assignments[0].AssignedUser)
		assert.Equal(t, models.AssignmentStatusPending, detail.Assignments[0].Status)

		// metadata survives the save/load round trip
		assert.Equal(t, map[string]any{"campaign": "spring-launch", "rev": float64(3)}, detail.Metadata)
	})

	t.Run("template without stages", func(t *testing.T) {
		empty, err := svc.CreateTemplate(ctx, models.CreateTemplateRequest{
			Name:        "Empty",
			ContentType: "press_release",
		}, editor.ID)
		require.NoError(t, err)

		_, err = eng.StartWorkflow(ctx, models.StartWorkflowRequest{
			TemplateID: empty.ID,
			ContentID:  "pr-2",
		}, editor.ID)
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestCompleteStageHappyPath(t *testing.T) {
	ctx := context.Background()
	eng, repo, svc := newTestEngine(t)

	editor := seedUser(t, repo, "editor1", "editor")
	legal1 := seedUser(t, repo, "legal1", "legal")
	legal2 := seedUser(t, repo, "legal2", "legal")
	tmpl := pressTemplate(t, svc, editor.ID)

	detail, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
		TemplateID: tmpl.ID, ContentID: "pr-1",
	}, editor.ID)
	require.NoError(t, err)

	// editor approves: advance to legal stage, one legal reviewer assigned
	a := pendingAssignmentFor(t, eng, detail.ID, editor.ID)
	detail, err = eng.CompleteStage(ctx, a.ID, editor.ID, models.ActionApproved, "reads well")
	require.NoError(t, err)
	require.NotNil(t, detail.CurrentStage)
	assert.Equal(t, 2, detail.CurrentStage.StageOrder)
	assert.Equal(t, models.InstanceStatusActive, detail.Status)

	// parallel_review permits a second assignment but does not create it
	autoAssigned := 0
	for _, v := range detail.Assignments {
		if v.StageOrder == 2 {
			autoAssigned++
		}
	}
	assert.Equal(t, 1, autoAssigned)

	// bring the second legal reviewer in manually
	assignedID := detail.Assignments[len(detail.Assignments)-1].AssignedUser
	other := legal1
	if assignedID == legal1.ID {
		other = legal2
	}
	_, err = eng.AssignStage(ctx, detail.ID, detail.CurrentStage.ID, other.ID, editor.ID)
	require.NoError(t, err)

	// first legal approval: quorum is 2, instance must stay on the stage
	first := pendingAssignmentFor(t, eng, detail.ID, assignedID)
	detail, err = eng.CompleteStage(ctx, first.ID, assignedID, models.ActionApproved, "")
	require.NoError(t, err)
	require.NotNil(t, detail.CurrentStage)
	assert.Equal(t, 2, detail.CurrentStage.StageOrder)

	// second approval satisfies the final stage: instance completes
	second := pendingAssignmentFor(t, eng, detail.ID, other.ID)
	detail, err = eng.CompleteStage(ctx, second.ID, other.ID, models.ActionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, detail.Status)
	assert.Nil(t, detail.CurrentStageID)
	assert.Nil(t, detail.CurrentStage)
	require.NotNil(t, detail.CompletedAt)
}

func TestCompleteStageGuards(t *testing.T) {
	ctx := context.Background()
	eng, repo, svc := newTestEngine(t)

	editor := seedUser(t, repo, "editor1", "editor")
	seedUser(t, repo, "legal1", "legal")
	seedUser(t, repo, "legal2", "legal")
	intruder := seedUser(t, repo, "mallory", "comms")
	tmpl := pressTemplate(t, svc, editor.ID)

	detail, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
		TemplateID: tmpl.ID, ContentID: "pr-1",
	}, editor.ID)
	require.NoError(t, err)

	a := pendingAssignmentFor(t, eng, detail.ID, editor.ID)

	t.Run("unknown assignment", func(t *testing.T) {
		_, err := eng.CompleteStage(ctx, uuid.New().String(), editor.ID, models.ActionApproved, "")
		assert.ErrorIs(t, err, repository.ErrAssignmentNotFound)
	})

	t.Run("invalid action", func(t *testing.T) {
		_, err := eng.CompleteStage(ctx, a.ID, editor.ID, "deferred", "")
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("only the assignee may complete", func(t *testing.T) {
		_, err := eng.CompleteStage(ctx, a.ID, intruder.ID, models.ActionApproved, "")
		var uerr *models.UnauthorizedError
		assert.ErrorAs(t, err, &uerr)
	})

	t.Run("started_at backfilled on first touch", func(t *testing.T) {
		updated, err := eng.CompleteStage(ctx, a.ID, editor.ID, models.ActionApproved, "")
		require.NoError(t, err)

		var completed *models.AssignmentView
		for _, v := range updated.Assignments {
			if v.ID == a.ID {
				completed = v
			}
		}
		require.NotNil(t, completed)
		require.NotNil(t, completed.StartedAt)
		require.NotNil(t, completed.CompletedAt)
		assert.Equal(t, models.AssignmentStatusCompleted, completed.Status)
	})

	t.Run("double submission conflicts", func(t *testing.T) {
		_, err := eng.CompleteStage(ctx, a.ID, editor.ID, models.ActionApproved, "")
		var cerr *models.ConflictError
		assert.ErrorAs(t, err, &cerr)
	})
}

func TestRejectionBlocksImmediately(t *testing.T) {
	ctx := context.Background()
	eng, repo, svc := newTestEngine(t)

	editor := seedUser(t, repo, "editor1", "editor")
	legal1 := seedUser(t, repo, "legal1", "legal")
	legal2 := seedUser(t, repo, "legal2", "legal")
	tmpl := pressTemplate(t, svc, editor.ID)

	detail, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
		TemplateID: tmpl.ID, ContentID: "pr-1",
	}, editor.ID)
	require.NoError(t, err)

	a := pendingAssignmentFor(t, eng, detail.ID, editor.ID)
	detail, err = eng.CompleteStage(ctx, a.ID, editor.ID, models.ActionApproved, "")
	require.NoError(t, err)
	legalStageID := *detail.CurrentStageID

	// both legal reviewers hold assignments
	assigned := detail.Assignments[len(detail.Assignments)-1].AssignedUser
	other := legal1
	if assigned == legal1.ID {
		other = legal2
	}
	_, err = eng.AssignStage(ctx, detail.ID, legalStageID, other.ID, editor.ID)
	require.NoError(t, err)

	// one approval, then a rejection: the veto wins regardless of order
	first := pendingAssignmentFor(t, eng, detail.ID, assigned)
	_, err = eng.CompleteStage(ctx, first.ID, assigned, models.ActionApproved, "")
	require.NoError(t, err)

	second := pendingAssignmentFor(t, eng, detail.ID, other.ID)
	detail, err = eng.CompleteStage(ctx, second.ID, other.ID, models.ActionRejected, "cite missing")
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusBlocked, detail.Status)
	require.NotNil(t, detail.CurrentStageID)
	assert.Equal(t, legalStageID, *detail.CurrentStageID)
	assert.Nil(t, detail.CompletedAt)
}

func TestQuorumShortByOneNeverAdvances(t *testing.T) {
	ctx := context.Background()
	eng, repo, svc := newTestEngine(t)

	editor := seedUser(t, repo, "editor1", "editor")
	seedUser(t, repo, "legal1", "legal")
	seedUser(t, repo, "legal2", "legal")
	tmpl := pressTemplate(t, svc, editor.ID)

	detail, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
		TemplateID: tmpl.ID, ContentID: "pr-1",
	}, editor.ID)
	require.NoError(t, err)

	a := pendingAssignmentFor(t, eng, detail.ID, editor.ID)
	detail, err = eng.CompleteStage(ctx, a.ID, editor.ID, models.ActionApproved, "")
	require.NoError(t, err)

	assigned := detail.Assignments[len(detail.Assignments)-1].AssignedUser
	first := pendingAssignmentFor(t, eng, detail.ID, assigned)
	detail, err = eng.CompleteStage(ctx, first.ID, assigned, models.ActionApproved, "")
	require.NoError(t, err)

	// one of two required approvals: still on the legal stage
	assert.Equal(t, models.InstanceStatusActive, detail.Status)
	require.NotNil(t, detail.CurrentStage)
	assert.Equal(t, 2, detail.CurrentStage.StageOrder)
}

func TestAutoAssignStallKeepsInstanceActive(t *testing.T) {
	ctx := context.Background()
	eng, repo, svc := newTestEngine(t)

	initiator := seedUser(t, repo, "editor1", "editor")
	// nobody holds the "compliance" role
	compliance := models.Role("compliance")
	tmpl, err := svc.CreateTemplate(ctx, models.CreateTemplateRequest{
		Name:        "Compliance Only",
		ContentType: "press_release",
		Stages: []models.StageSpec{
			{StageName: "Compliance Review", StageType: "review", RequiredRole: &compliance},
		},
	}, initiator.ID)
	require.NoError(t, err)

	detail, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
		TemplateID: tmpl.ID, ContentID: "pr-1",
	}, initiator.ID)
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusActive, detail.Status)
	assert.Empty(t, detail.Assignments)

	// recovery is a manual assignment
	late := seedUser(t, repo, "compliance1", compliance)
	_, err = eng.AssignStage(ctx, detail.ID, *detail.CurrentStageID, late.ID, initiator.ID)
	require.NoError(t, err)

	task := pendingAssignmentFor(t, eng, detail.ID, late.ID)
	detail, err = eng.CompleteStage(ctx, task.ID, late.ID, models.ActionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, detail.Status)
}

func TestExplicitAdvanceForManualStages(t *testing.T) {
	ctx := context.Background()
	eng, repo, svc := newTestEngine(t)

	editor := seedUser(t, repo, "editor1", "editor")
	comms := seedUser(t, repo, "comms1", "comms")

	editorRole := models.Role("editor")
	commsRole := models.Role("comms")
	manual := false
	tmpl, err := svc.CreateTemplate(ctx, models.CreateTemplateRequest{
		Name:        "Held Release",
		ContentType: "press_release",
		Stages: []models.StageSpec{
			{StageName: "Editorial Review", StageType: "review", RequiredRole: &editorRole, AutoAdvance: &manual},
			{StageName: "Distribution", StageType: "final", RequiredRole: &commsRole},
		},
	}, editor.ID)
	require.NoError(t, err)

	detail, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
		TemplateID: tmpl.ID, ContentID: "pr-1",
	}, editor.ID)
	require.NoError(t, err)

	t.Run("advance before quorum fails", func(t *testing.T) {
		_, err := eng.AdvanceStage(ctx, detail.ID)
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	a := pendingAssignmentFor(t, eng, detail.ID, editor.ID)
	detail, err = eng.CompleteStage(ctx, a.ID, editor.ID, models.ActionApproved, "")
	require.NoError(t, err)

	t.Run("quorum holds the stage until explicitly advanced", func(t *testing.T) {
		require.NotNil(t, detail.CurrentStage)
		assert.Equal(t, 1, detail.CurrentStage.StageOrder)

		advanced, err := eng.AdvanceStage(ctx, detail.ID)
		require.NoError(t, err)
		require.NotNil(t, advanced.CurrentStage)
		assert.Equal(t, 2, advanced.CurrentStage.StageOrder)

		// the new stage got its auto-assignment
		task := pendingAssignmentFor(t, eng, detail.ID, comms.ID)
		assert.Equal(t, models.AssignmentStatusPending, task.Status)
	})

	t.Run("advancing a completed instance conflicts", func(t *testing.T) {
		task := pendingAssignmentFor(t, eng, detail.ID, comms.ID)
		final, err := eng.CompleteStage(ctx, task.ID, comms.ID, models.ActionApproved, "")
		require.NoError(t, err)
		require.Equal(t, models.InstanceStatusCompleted, final.Status)

		_, err = eng.AdvanceStage(ctx, detail.ID)
		var cerr *models.ConflictError
		assert.ErrorAs(t, err, &cerr)
	})
}

// TestConcurrentQuorumCrossing drives the last two required approvals of a
// parallel stage from two goroutines and verifies exactly one stage
// transition happened: the instance lands on the next stage with exactly
// one fresh auto-assignment, never past it.
func TestConcurrentQuorumCrossing(t *testing.T) {
	ctx := context.Background()
	eng, repo, svc := newTestEngine(t)

	editor := seedUser(t, repo, "editor1", "editor")
	legal1 := seedUser(t, repo, "legal1", "legal")
	legal2 := seedUser(t, repo, "legal2", "legal")
	seedUser(t, repo, "comms1", "comms")

	editorRole := models.Role("editor")
	legalRole := models.Role("legal")
	commsRole := models.Role("comms")
	two := 2
	tmpl, err := svc.CreateTemplate(ctx, models.CreateTemplateRequest{
		Name:        "Three Step",
		ContentType: "press_release",
		Stages: []models.StageSpec{
			{StageName: "Editorial Review", StageType: "review", RequiredRole: &editorRole},
			{StageName: "Legal Sign-off", StageType: "legal", RequiredRole: &legalRole, ParallelReview: true, MinApprovals: &two},
			{StageName: "Distribution", StageType: "final", RequiredRole: &commsRole},
		},
	}, editor.ID)
	require.NoError(t, err)

	detail, err := eng.StartWorkflow(ctx, models.StartWorkflowRequest{
		TemplateID: tmpl.ID, ContentID: "pr-1",
	}, editor.ID)
	require.NoError(t, err)

	a := pendingAssignmentFor(t, eng, detail.ID, editor.ID)
	detail, err = eng.CompleteStage(ctx, a.ID, editor.ID, models.ActionApproved, "")
	require.NoError(t, err)
	legalStageID := *detail.CurrentStageID

	assigned := detail.Assignments[len(detail.Assignments)-1].AssignedUser
	other := legal1
	if assigned == legal1.ID {
		other = legal2
	}
	_, err = eng.AssignStage(ctx, detail.ID, legalStageID, other.ID, editor.ID)
	require.NoError(t, err)

	first := pendingAssignmentFor(t, eng, detail.ID, assigned)
	second := pendingAssignmentFor(t, eng, detail.ID, other.ID)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, c := range []struct {
		id   string
		user string
	}{
		{first.ID, assigned},
		{second.ID, other.ID},
	} {
		wg.Add(1)
		go func(assignmentID, userID string) {
			defer wg.Done()
			_, err := eng.CompleteStage(ctx, assignmentID, userID, models.ActionApproved, "")
			errs <- err
		}(c.id, c.user)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := eng.GetInstance(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusActive, final.Status)
	require.NotNil(t, final.CurrentStage)
	assert.Equal(t, 3, final.CurrentStage.StageOrder)

	// a double advance would have auto-assigned the final stage twice
	finalStageAssignments := 0
	for _, v := range final.Assignments {
		if v.StageOrder == 3 {
			finalStageAssignments++
		}
	}
	assert.Equal(t, 1, finalStageAssignments)
}
