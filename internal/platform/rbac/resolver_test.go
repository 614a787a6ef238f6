package rbac

import (
	"context"
	"errors"
	"testing"

	"project-tracker/backend/internal/membership/domain"
	projectdomain "project-tracker/backend/internal/project/domain"
	taskdomain "project-tracker/backend/internal/task/domain"
	teamdomain "project-tracker/backend/internal/team/domain"
	userdomain "project-tracker/backend/internal/user/domain"
)

// mockReader implements MembershipReader for tests.
type mockReader struct {
	teams       map[string]*teamdomain.Team
	projects    map[string]*projectdomain.Project
	memberships map[string]*domain.Membership // key: teamID:userID
	assigned    map[string]bool               // key: projectID:userID
	err         error
	calls       int
}

func newMockReader() *mockReader {
	return &mockReader{
		teams:       map[string]*teamdomain.Team{},
		projects:    map[string]*projectdomain.Project{},
		memberships: map[string]*domain.Membership{},
		assigned:    map[string]bool{},
	}
}

func (m *mockReader) GetTeam(ctx context.Context, id string) (*teamdomain.Team, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.teams[id], nil
}

func (m *mockReader) GetProject(ctx context.Context, id string) (*projectdomain.Project, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.projects[id], nil
}

func (m *mockReader) GetMembership(ctx context.Context, teamID, userID string) (*domain.Membership, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.memberships[teamID+":"+userID], nil
}

func (m *mockReader) HasAssignedTaskInProject(ctx context.Context, projectID, userID string) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.assigned[projectID+":"+userID], nil
}

func (m *mockReader) addMember(teamID, userID string, role domain.Role) {
	m.memberships[teamID+":"+userID] = &domain.Membership{ID: "m-" + userID, TeamID: teamID, UserID: userID, Role: role}
}

func strPtr(s string) *string { return &s }

// fixture: team-1 owned by alice, project-1 in team-1 managed by pm, task-1 created by alice assigned to bob.
func fixture() (*mockReader, *teamdomain.Team, *projectdomain.Project, *taskdomain.Task) {
	r := newMockReader()
	team := &teamdomain.Team{ID: "team-1", Name: "Core", OwnerID: "alice"}
	project := &projectdomain.Project{ID: "project-1", TeamID: "team-1", Name: "Launch", ManagerID: strPtr("pm")}
	task := &taskdomain.Task{ID: "task-1", ProjectID: "project-1", Title: "Ship", AssignedTo: strPtr("bob"), CreatedBy: strPtr("alice")}
	r.teams[team.ID] = team
	r.projects[project.ID] = project
	r.addMember("team-1", "alice", domain.RoleOwner)
	r.addMember("team-1", "bob", domain.RoleMember)
	r.addMember("team-1", "mia", domain.RoleManager)
	r.assigned["project-1:bob"] = true
	return r, team, project, task
}

func user(id string) *userdomain.User {
	return &userdomain.User{ID: id, Email: id + "@example.com", Username: id}
}

func TestResolver_HasTeamAccess_GlobalManagerWithoutMembership(t *testing.T) {
	r, team, _, _ := fixture()
	res := NewResolver(r)

	carol := user("carol")
	carol.IsProjectManager = true
	if !res.HasTeamAccess(context.Background(), carol, team) {
		t.Error("HasTeamAccess(carol) = false, want true for global manager")
	}
	if res.HasTeamAccess(context.Background(), user("dave"), team) {
		t.Error("HasTeamAccess(dave) = true, want false for non-member")
	}
}

func TestResolver_PromotionGrantsCreateMembers(t *testing.T) {
	r, team, _, _ := fixture()
	res := NewResolver(r)
	bob := user("bob")

	if res.CanCreateTeamMembers(context.Background(), bob, team) {
		t.Fatal("CanCreateTeamMembers before promotion = true, want false")
	}
	r.memberships["team-1:bob"].Role = domain.RoleManager
	if !res.CanCreateTeamMembers(context.Background(), bob, team) {
		t.Error("CanCreateTeamMembers after promotion = false, want true")
	}
}

func TestResolver_TeamPredicates(t *testing.T) {
	r, team, _, _ := fixture()
	res := NewResolver(r)
	ctx := context.Background()
	global := user("gm")
	global.IsProjectManager = true

	tests := []struct {
		name   string
		actor  *userdomain.User
		access bool
		manage bool
	}{
		{"owner", user("alice"), true, true},
		{"manager", user("mia"), true, true},
		{"member", user("bob"), true, false},
		{"global manager", global, true, true},
		{"outsider", user("dave"), false, false},
		{"nil actor", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := res.HasTeamAccess(ctx, tt.actor, team); got != tt.access {
				t.Errorf("HasTeamAccess = %v, want %v", got, tt.access)
			}
			for name, pred := range map[string]func(context.Context, *userdomain.User, *teamdomain.Team) bool{
				"CanManageTeam":        res.CanManageTeam,
				"CanCreateTeamMembers": res.CanCreateTeamMembers,
				"CanAssignTasks":       res.CanAssignTasks,
				"CanGenerateReports":   res.CanGenerateReports,
			} {
				if got := pred(ctx, tt.actor, team); got != tt.manage {
					t.Errorf("%s = %v, want %v", name, got, tt.manage)
				}
			}
		})
	}
}

func TestResolver_OwnerWithoutMembershipRowStillManages(t *testing.T) {
	r, team, _, _ := fixture()
	delete(r.memberships, "team-1:alice")
	res := NewResolver(r)
	if !res.CanManageTeam(context.Background(), user("alice"), team) {
		t.Error("CanManageTeam(owner) = false, want true from structural ownership")
	}
}

func TestResolver_ProjectAccess(t *testing.T) {
	r, _, project, _ := fixture()
	r.assigned["project-1:contractor"] = true
	res := NewResolver(r)
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  *userdomain.User
		access bool
		manage bool
	}{
		{"project manager outside team", user("pm"), true, true},
		{"team owner", user("alice"), true, true},
		{"team manager", user("mia"), true, true},
		{"member", user("bob"), true, false},
		{"cross-team assignee", user("contractor"), true, false},
		{"outsider", user("dave"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := res.HasProjectAccess(ctx, tt.actor, project); got != tt.access {
				t.Errorf("HasProjectAccess = %v, want %v", got, tt.access)
			}
			if got := res.CanManageProject(ctx, tt.actor, project); got != tt.manage {
				t.Errorf("CanManageProject = %v, want %v", got, tt.manage)
			}
		})
	}
}

func TestResolver_TaskPredicates(t *testing.T) {
	r, _, _, task := fixture()
	r.addMember("team-1", "eve", domain.RoleMember)
	res := NewResolver(r)
	ctx := context.Background()
	global := user("gm")
	global.IsProjectManager = true

	tests := []struct {
		name   string
		actor  *userdomain.User
		access bool
		manage bool
	}{
		{"assignee", user("bob"), true, true},
		{"creator", user("alice"), true, true},
		{"project manager", user("pm"), true, true},
		{"team manager", user("mia"), true, true},
		{"other member", user("eve"), true, false},
		{"global manager", global, true, false},
		{"outsider", user("dave"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := res.HasTaskAccess(ctx, tt.actor, task); got != tt.access {
				t.Errorf("HasTaskAccess = %v, want %v", got, tt.access)
			}
			if got := res.CanManageTask(ctx, tt.actor, task); got != tt.manage {
				t.Errorf("CanManageTask = %v, want %v", got, tt.manage)
			}
		})
	}
}

func TestResolver_AssigneeOutsideTeamHasTaskAccess(t *testing.T) {
	r, _, _, task := fixture()
	delete(r.memberships, "team-1:bob")
	res := NewResolver(r)
	if !res.HasTaskAccess(context.Background(), user("bob"), task) {
		t.Error("HasTaskAccess(assignee without membership) = false, want true")
	}
}

func TestResolver_MissingParentDenies(t *testing.T) {
	r, _, _, _ := fixture()
	res := NewResolver(r)
	orphan := &taskdomain.Task{ID: "task-x", ProjectID: "gone", AssignedTo: strPtr("bob")}
	if res.HasTaskAccess(context.Background(), user("bob"), orphan) {
		t.Error("HasTaskAccess on task with missing project = true, want false")
	}
	if res.HasTeamAccess(context.Background(), user("alice"), nil) {
		t.Error("HasTeamAccess(nil team) = true, want false")
	}
}

func TestResolver_ReadErrorDenies(t *testing.T) {
	r, team, _, _ := fixture()
	r.err = errors.New("connection reset")
	res := NewResolver(r)
	if res.HasTeamAccess(context.Background(), user("alice"), team) {
		t.Error("HasTeamAccess on read error = true, want false")
	}
	_, err := res.Allowed(context.Background(), HasTeamAccess, user("alice"), Target{Team: team})
	if err == nil {
		t.Fatal("Allowed: expected read error")
	}
}

func TestResolver_NoCaching(t *testing.T) {
	r, team, _, _ := fixture()
	res := NewResolver(r)
	res.HasTeamAccess(context.Background(), user("bob"), team)
	first := r.calls
	res.HasTeamAccess(context.Background(), user("bob"), team)
	if r.calls != 2*first {
		t.Errorf("reader calls = %d, want %d (no caching across resolutions)", r.calls, 2*first)
	}
	delete(r.memberships, "team-1:bob")
	if res.HasTeamAccess(context.Background(), user("bob"), team) {
		t.Error("HasTeamAccess after removal = true, want false")
	}
}

func TestResolver_Require(t *testing.T) {
	r, team, _, _ := fixture()
	res := NewResolver(r)
	if err := res.Require(context.Background(), CanManageTeam, user("mia"), Target{Team: team}); err != nil {
		t.Errorf("Require(manager): %v", err)
	}
	err := res.Require(context.Background(), CanManageTeam, user("bob"), Target{Team: team})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("Require(member) err = %v, want ErrPermissionDenied", err)
	}
}

func TestResolver_CanViewMember(t *testing.T) {
	r, team, _, _ := fixture()
	res := NewResolver(r)
	ctx := context.Background()
	if !res.CanViewMember(ctx, user("bob"), team, user("bob")) {
		t.Error("CanViewMember(self) = false, want true")
	}
	if res.CanViewMember(ctx, user("bob"), team, user("mia")) {
		t.Error("CanViewMember(member viewing manager) = true, want false")
	}
	if !res.CanViewMember(ctx, user("mia"), team, user("bob")) {
		t.Error("CanViewMember(manager viewing member) = false, want true")
	}
	if res.CanViewMember(ctx, user("dave"), team, user("dave")) {
		t.Error("CanViewMember(outsider self) = true, want false")
	}
}

type errDecider struct{}

func (errDecider) Decide(context.Context, Capability, Facts) (bool, error) {
	return true, errors.New("engine down")
}

func TestResolver_DeciderErrorDenies(t *testing.T) {
	r, team, _, _ := fixture()
	res := NewResolver(r, WithDecider(errDecider{}))
	if res.HasTeamAccess(context.Background(), user("alice"), team) {
		t.Error("HasTeamAccess with failing decider = true, want false")
	}
}

func TestResolver_WithReader(t *testing.T) {
	r, team, _, _ := fixture()
	res := NewResolver(r)
	other := newMockReader()
	other.teams[team.ID] = team
	bound := res.WithReader(other)
	if bound.HasTeamAccess(context.Background(), user("bob"), team) {
		t.Error("HasTeamAccess via empty reader = true, want false")
	}
	if !res.HasTeamAccess(context.Background(), user("bob"), team) {
		t.Error("original resolver changed by WithReader")
	}
}
