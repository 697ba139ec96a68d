package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"approvalflow/backend/pkg/models"
)

// MemoryStore is a goroutine-safe in-memory implementation of Repository,
// backed by maps. Used by unit tests and local development; the Postgres
// store is the production implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	templates   map[string]*models.WorkflowTemplate
	instances   map[string]*models.WorkflowInstance
	assignments map[string]*models.StageAssignment
	users       map[string]*models.User
	grants      map[grantKey]*models.PermissionGrant
}

type grantKey struct {
	userID         string
	permissionType string
	resourceType   string
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates:   make(map[string]*models.WorkflowTemplate),
		instances:   make(map[string]*models.WorkflowInstance),
		assignments: make(map[string]*models.StageAssignment),
		users:       make(map[string]*models.User),
		grants:      make(map[grantKey]*models.PermissionGrant),
	}
}

var _ Repository = (*MemoryStore)(nil)

func (s *MemoryStore) CreateTemplate(_ context.Context, tmpl *models.WorkflowTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, ok := s.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return cloneTemplate(tmpl), nil
}

func (s *MemoryStore) ListTemplates(_ context.Context, contentType string) ([]*models.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowTemplate
	for _, tmpl := range s.templates {
		if contentType != "" && tmpl.ContentType != contentType {
			continue
		}
		out = append(out, cloneTemplate(tmpl))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateInstance(_ context.Context, inst *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *MemoryStore) GetInstance(_ context.Context, id string) (*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return cloneInstance(inst), nil
}

func (s *MemoryStore) AdvanceStage(_ context.Context, instanceID, fromStageID string, toStageID *string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	if inst.Status != models.InstanceStatusActive ||
		inst.CurrentStageID == nil || *inst.CurrentStageID != fromStageID {
		return ErrStaleInstance
	}

	if toStageID != nil {
		next := *toStageID
		inst.CurrentStageID = &next
		return nil
	}

	completedAt := now
	inst.Status = models.InstanceStatusCompleted
	inst.CurrentStageID = nil
	inst.CompletedAt = &completedAt
	return nil
}

func (s *MemoryStore) BlockInstance(_ context.Context, instanceID, fromStageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	if inst.Status != models.InstanceStatusActive ||
		inst.CurrentStageID == nil || *inst.CurrentStageID != fromStageID {
		return ErrStaleInstance
	}

	inst.Status = models.InstanceStatusBlocked
	return nil
}

func (s *MemoryStore) CreateAssignment(_ context.Context, a *models.StageAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (s *MemoryStore) GetAssignment(_ context.Context, id string) (*models.StageAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[id]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	return cloneAssignment(a), nil
}

func (s *MemoryStore) CompleteAssignment(_ context.Context, a *models.StageAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.assignments[a.ID]
	if !ok {
		return ErrAssignmentNotFound
	}
	if cur.Status != models.AssignmentStatusPending {
		return ErrStaleAssignment
	}

	cur.Status = models.AssignmentStatusCompleted
	cur.ActionTaken = a.ActionTaken
	cur.Notes = a.Notes
	cur.StartedAt = a.StartedAt
	cur.CompletedAt = a.CompletedAt
	return nil
}

func (s *MemoryStore) CountApprovals(_ context.Context, instanceID, stageID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.assignments {
		if a.InstanceID == instanceID && a.StageID == stageID &&
			a.Status == models.AssignmentStatusCompleted &&
			a.ActionTaken != nil && *a.ActionTaken == models.ActionApproved {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListInstanceAssignments(_ context.Context, instanceID string) ([]*models.AssignmentView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	tmpl := s.templates[inst.TemplateID]

	var views []*models.AssignmentView
	for _, a := range s.assignments {
		if a.InstanceID != instanceID {
			continue
		}
		v := &models.AssignmentView{StageAssignment: cloneAssignment(a)}
		if tmpl != nil {
			if st := tmpl.StageByID(a.StageID); st != nil {
				v.StageName = st.Name
				v.StageOrder = st.StageOrder
			}
		}
		if u, ok := s.users[a.AssignedUser]; ok {
			v.AssigneeName = u.FullName
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].StageOrder != views[j].StageOrder {
			return views[i].StageOrder < views[j].StageOrder
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views, nil
}

func (s *MemoryStore) ListUserTasks(_ context.Context, userID string, status models.AssignmentStatus) ([]*models.TaskView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*models.TaskView
	for _, a := range s.assignments {
		if a.AssignedUser != userID || a.Status != status {
			continue
		}
		inst, ok := s.instances[a.InstanceID]
		if !ok {
			continue
		}
		t := &models.TaskView{
			StageAssignment: cloneAssignment(a),
			ContentID:       inst.ContentID,
			ContentType:     inst.ContentType,
			Priority:        inst.Priority,
			DueDate:         inst.DueDate,
		}
		if tmpl := s.templates[inst.TemplateID]; tmpl != nil {
			if st := tmpl.StageByID(a.StageID); st != nil {
				t.StageName = st.Name
			}
		}
		tasks = append(tasks, t)
	}
	sortTasks(tasks)
	return tasks, nil
}

// sortTasks orders by priority weight descending, then due date ascending
// with nil dates last, then creation time.
func sortTasks(tasks []*models.TaskView) {
	sort.Slice(tasks, func(i, j int) bool {
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
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ListActiveUsersByRole(_ context.Context, role models.Role) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.User
	for _, u := range s.users {
		if u.Role == role && u.Status == models.UserStatusActive {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) GrantPermission(_ context.Context, g *models.PermissionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantKey{g.UserID, g.PermissionType, g.ResourceType}
	if _, exists := s.grants[key]; exists {
		return nil
	}
	cp := *g
	s.grants[key] = &cp
	return nil
}

func (s *MemoryStore) HasPermission(_ context.Context, userID, permissionType, resourceType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.grants[grantKey{userID, permissionType, resourceType}]
	return ok, nil
}

func cloneTemplate(tmpl *models.WorkflowTemplate) *models.WorkflowTemplate {
	cp := *tmpl
	cp.Stages = make([]*models.WorkflowStage, len(tmpl.Stages))
	for i, st := range tmpl.Stages {
		sc := *st
		cp.Stages[i] = &sc
	}
	return &cp
}

func cloneInstance(inst *models.WorkflowInstance) *models.WorkflowInstance {
	cp := *inst
	if inst.CurrentStageID != nil {
		id := *inst.CurrentStageID
		cp.CurrentStageID = &id
	}
	if inst.Metadata != nil {
		cp.Metadata = make(map[string]any, len(inst.Metadata))
		for k, v := range inst.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func cloneAssignment(a *models.StageAssignment) *models.StageAssignment {
	cp := *a
	return &cp
}
