package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"project-tracker/backend/internal/membership/domain"
	projectdomain "project-tracker/backend/internal/project/domain"
	taskdomain "project-tracker/backend/internal/task/domain"
	teamdomain "project-tracker/backend/internal/team/domain"
	userdomain "project-tracker/backend/internal/user/domain"
)

// MemoryRepository is an in-process Repository for tests and local tooling.
// Transactions run one at a time against a copy of the data that replaces the committed
// state only when fn succeeds, so a failed transaction leaves no trace. Reads outside a
// transaction see the last committed state.
//
// Unique constraints on users, teams and memberships are enforced; the one-owner index is not,
// so the ownership guard can be exercised against seeded corrupt data.
type MemoryRepository struct {
	txMu   sync.Mutex
	dataMu sync.RWMutex
	state  *memState
	failOn map[string]error
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Tx         = (*memTx)(nil)
)

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState(), failOn: map[string]error{}}
}

// FailOn makes every later call of the named Tx method (e.g. "UnassignTasks") return err.
// A nil err clears the failure.
func (r *MemoryRepository) FailOn(method string, err error) {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	if err == nil {
		delete(r.failOn, method)
		return
	}
	r.failOn[method] = err
}

// PutUser stores a copy of u without validation.
func (r *MemoryRepository) PutUser(u *userdomain.User) {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	cp := *u
	r.state.users[u.ID] = &cp
}

// PutTeam stores a copy of t without validation.
func (r *MemoryRepository) PutTeam(t *teamdomain.Team) {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	cp := *t
	r.state.teams[t.ID] = &cp
}

// PutMembership stores a copy of m without validation.
func (r *MemoryRepository) PutMembership(m *domain.Membership) {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	cp := *m
	r.state.memberships[membershipKey(m.TeamID, m.UserID)] = &cp
}

// PutProject stores a copy of p without validation.
func (r *MemoryRepository) PutProject(p *projectdomain.Project) {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	cp := *p
	r.state.projects[p.ID] = &cp
}

// PutTask stores a copy of t without validation.
func (r *MemoryRepository) PutTask(t *taskdomain.Task) {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	cp := *t
	r.state.tasks[t.ID] = &cp
}

func (r *MemoryRepository) GetUser(ctx context.Context, id string) (*userdomain.User, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.state.GetUser(ctx, id)
}

func (r *MemoryRepository) GetTeam(ctx context.Context, id string) (*teamdomain.Team, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.state.GetTeam(ctx, id)
}

func (r *MemoryRepository) GetProject(ctx context.Context, id string) (*projectdomain.Project, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.state.GetProject(ctx, id)
}

func (r *MemoryRepository) GetTask(ctx context.Context, id string) (*taskdomain.Task, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.state.GetTask(ctx, id)
}

func (r *MemoryRepository) GetMembership(ctx context.Context, teamID, userID string) (*domain.Membership, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.state.GetMembership(ctx, teamID, userID)
}

func (r *MemoryRepository) ListMemberships(ctx context.Context, teamID string) ([]*domain.Membership, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.state.ListMemberships(ctx, teamID)
}

func (r *MemoryRepository) HasAssignedTaskInProject(ctx context.Context, projectID, userID string) (bool, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.state.HasAssignedTaskInProject(ctx, projectID, userID)
}

// WithinTx runs fn against a private copy of the data and commits it when fn returns nil.
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	r.dataMu.RLock()
	work := r.state.clone()
	failOn := make(map[string]error, len(r.failOn))
	for k, v := range r.failOn {
		failOn[k] = v
	}
	r.dataMu.RUnlock()

	if err := fn(ctx, &memTx{memState: work, failOn: failOn}); err != nil {
		return err
	}
	r.dataMu.Lock()
	r.state = work
	r.dataMu.Unlock()
	return nil
}

type memState struct {
	users       map[string]*userdomain.User
	teams       map[string]*teamdomain.Team
	memberships map[string]*domain.Membership
	projects    map[string]*projectdomain.Project
	tasks       map[string]*taskdomain.Task
}

func newMemState() *memState {
	return &memState{
		users:       map[string]*userdomain.User{},
		teams:       map[string]*teamdomain.Team{},
		memberships: map[string]*domain.Membership{},
		projects:    map[string]*projectdomain.Project{},
		tasks:       map[string]*taskdomain.Task{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.users {
		cp := *v
		c.users[k] = &cp
	}
	for k, v := range s.teams {
		cp := *v
		c.teams[k] = &cp
	}
	for k, v := range s.memberships {
		cp := *v
		c.memberships[k] = &cp
	}
	for k, v := range s.projects {
		cp := *v
		c.projects[k] = &cp
	}
	for k, v := range s.tasks {
		cp := *v
		c.tasks[k] = &cp
	}
	return c
}

func membershipKey(teamID, userID string) string {
	return teamID + "\x00" + userID
}

func (s *memState) GetUser(_ context.Context, id string) (*userdomain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memState) GetTeam(_ context.Context, id string) (*teamdomain.Team, error) {
	t, ok := s.teams[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memState) GetProject(_ context.Context, id string) (*projectdomain.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memState) GetTask(_ context.Context, id string) (*taskdomain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memState) GetMembership(_ context.Context, teamID, userID string) (*domain.Membership, error) {
	m, ok := s.memberships[membershipKey(teamID, userID)]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *memState) ListMemberships(_ context.Context, teamID string) ([]*domain.Membership, error) {
	var out []*domain.Membership
	for _, m := range s.memberships {
		if m.TeamID == teamID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Role.Rank(), out[j].Role.Rank(); ri != rj {
			return ri > rj
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *memState) HasAssignedTaskInProject(_ context.Context, projectID, userID string) (bool, error) {
	for _, t := range s.tasks {
		if t.ProjectID == projectID && t.AssignedTo != nil && *t.AssignedTo == userID {
			return true, nil
		}
	}
	return false, nil
}

type memTx struct {
	*memState
	failOn map[string]error
}

func (t *memTx) fail(method string) error {
	return t.failOn[method]
}

func (t *memTx) CreateUser(_ context.Context, u *userdomain.User) error {
	if err := t.fail("CreateUser"); err != nil {
		return err
	}
	for _, existing := range t.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return fmt.Errorf("%w: %s", domain.ErrUserExists, u.Email)
		}
	}
	cp := *u
	t.users[u.ID] = &cp
	return nil
}

func (t *memTx) LockTeam(ctx context.Context, teamID string) (*teamdomain.Team, error) {
	if err := t.fail("LockTeam"); err != nil {
		return nil, err
	}
	return t.GetTeam(ctx, teamID)
}

func (t *memTx) CreateTeam(_ context.Context, team *teamdomain.Team) error {
	if err := t.fail("CreateTeam"); err != nil {
		return err
	}
	for _, existing := range t.teams {
		if existing.OwnerID == team.OwnerID && existing.Name == team.Name {
			return fmt.Errorf("%w: %q", domain.ErrTeamNameTaken, team.Name)
		}
	}
	cp := *team
	t.teams[team.ID] = &cp
	return nil
}

func (t *memTx) DeleteTeam(_ context.Context, teamID string) error {
	if err := t.fail("DeleteTeam"); err != nil {
		return err
	}
	delete(t.teams, teamID)
	for k, m := range t.memberships {
		if m.TeamID == teamID {
			delete(t.memberships, k)
		}
	}
	for pid, p := range t.projects {
		if p.TeamID != teamID {
			continue
		}
		delete(t.projects, pid)
		for tid, task := range t.tasks {
			if task.ProjectID == pid {
				delete(t.tasks, tid)
			}
		}
	}
	return nil
}

func (t *memTx) CreateMembership(_ context.Context, m *domain.Membership) error {
	if err := t.fail("CreateMembership"); err != nil {
		return err
	}
	key := membershipKey(m.TeamID, m.UserID)
	if _, ok := t.memberships[key]; ok {
		return fmt.Errorf("%w: user %s in team %s", domain.ErrAlreadyMember, m.UserID, m.TeamID)
	}
	cp := *m
	t.memberships[key] = &cp
	return nil
}

func (t *memTx) UpdateRole(_ context.Context, teamID, userID string, role domain.Role) (*domain.Membership, error) {
	if err := t.fail("UpdateRole"); err != nil {
		return nil, err
	}
	m, ok := t.memberships[membershipKey(teamID, userID)]
	if !ok {
		return nil, nil
	}
	m.Role = role
	cp := *m
	return &cp, nil
}

func (t *memTx) DeleteMembership(_ context.Context, teamID, userID string) (bool, error) {
	if err := t.fail("DeleteMembership"); err != nil {
		return false, err
	}
	key := membershipKey(teamID, userID)
	if _, ok := t.memberships[key]; !ok {
		return false, nil
	}
	delete(t.memberships, key)
	return true, nil
}

func (t *memTx) CreateProject(_ context.Context, p *projectdomain.Project) error {
	if err := t.fail("CreateProject"); err != nil {
		return err
	}
	cp := *p
	t.projects[p.ID] = &cp
	return nil
}

func (t *memTx) LockTask(ctx context.Context, taskID string) (*taskdomain.Task, error) {
	if err := t.fail("LockTask"); err != nil {
		return nil, err
	}
	return t.GetTask(ctx, taskID)
}

func (t *memTx) CreateTask(_ context.Context, task *taskdomain.Task) error {
	if err := t.fail("CreateTask"); err != nil {
		return err
	}
	cp := *task
	t.tasks[task.ID] = &cp
	return nil
}

func (t *memTx) UpdateTaskStatus(_ context.Context, task *taskdomain.Task) error {
	if err := t.fail("UpdateTaskStatus"); err != nil {
		return err
	}
	existing, ok := t.tasks[task.ID]
	if !ok {
		return nil
	}
	existing.Status = task.Status
	existing.CompletedAt = task.CompletedAt
	existing.UpdatedAt = task.UpdatedAt
	return nil
}

func (t *memTx) UnassignTasks(_ context.Context, teamID, userID string, at time.Time) ([]string, error) {
	if err := t.fail("UnassignTasks"); err != nil {
		return nil, err
	}
	var ids []string
	for _, task := range t.tasks {
		p, ok := t.projects[task.ProjectID]
		if !ok || p.TeamID != teamID || task.AssignedTo == nil || *task.AssignedTo != userID {
			continue
		}
		task.AssignedTo = nil
		task.Status = taskdomain.StatusUnassigned
		task.CompletedAt = nil
		task.UpdatedAt = at
		ids = append(ids, task.ID)
	}
	sort.Strings(ids)
	return ids, nil
}
