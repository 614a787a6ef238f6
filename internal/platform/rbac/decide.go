package rbac

import (
	"context"

	"project-tracker/backend/internal/membership/domain"
)

// Capability names a permission the resolver can decide.
type Capability string

const (
	HasTeamAccess        Capability = "has_team_access"
	CanManageTeam        Capability = "can_manage_team"
	HasProjectAccess     Capability = "has_project_access"
	HasTaskAccess        Capability = "has_task_access"
	CanManageTask        Capability = "can_manage_task"
	CanManageProject     Capability = "can_manage_project"
	CanCreateTeamMembers Capability = "can_create_team_members"
	CanAssignTasks       Capability = "can_assign_tasks"
	CanGenerateReports   Capability = "can_generate_reports"
)

// Capabilities returns every capability in a stable order.
func Capabilities() []Capability {
	return []Capability{
		HasTeamAccess, CanManageTeam, HasProjectAccess, HasTaskAccess, CanManageTask,
		CanManageProject, CanCreateTeamMembers, CanAssignTasks, CanGenerateReports,
	}
}

// Facts is the snapshot a decision is made from. It is gathered fresh for every resolution.
type Facts struct {
	TeamOwner      bool
	ProjectManager bool
	TaskAssignee   bool
	TaskCreator    bool
	GlobalManager  bool
	// Role is the actor's membership role in the target's team; empty when not a member.
	Role domain.Role
	// AssignedInProject is true when any task of the target's project is assigned to the actor.
	AssignedInProject bool
}

// Member reports whether the actor holds any membership in the team.
func (f Facts) Member() bool {
	return f.Role.Valid()
}

// Decider turns facts into a decision for one capability.
type Decider interface {
	Decide(ctx context.Context, c Capability, f Facts) (bool, error)
}

// NativeDecider evaluates the rules in Go.
type NativeDecider struct{}

func (NativeDecider) Decide(_ context.Context, c Capability, f Facts) (bool, error) {
	return Decide(c, f), nil
}

// Decide grants c when any tier grants it: structural ownership first, then the global
// manager override, then the membership role table and task assignment.
func Decide(c Capability, f Facts) bool {
	return structural(c, f) || globalOverride(c, f) || membershipGrant(c, f)
}

func structural(c Capability, f Facts) bool {
	switch c {
	case HasTeamAccess, CanManageTeam, CanCreateTeamMembers, CanAssignTasks, CanGenerateReports:
		return f.TeamOwner
	case HasProjectAccess, CanManageProject:
		return f.ProjectManager || f.TeamOwner
	case HasTaskAccess:
		return f.TaskAssignee || f.ProjectManager || f.TeamOwner
	case CanManageTask:
		return f.TaskCreator || f.TaskAssignee || f.ProjectManager
	}
	return false
}

// globalOverride applies IsProjectManager to every capability except task management,
// which is decided by the task's own relationships and the team role alone.
func globalOverride(c Capability, f Facts) bool {
	if c == CanManageTask {
		return false
	}
	return f.GlobalManager
}

func membershipGrant(c Capability, f Facts) bool {
	switch c {
	case HasTeamAccess:
		return f.Member()
	case HasProjectAccess, HasTaskAccess:
		return f.Member() || f.AssignedInProject
	case CanManageTeam, CanCreateTeamMembers, CanAssignTasks, CanGenerateReports, CanManageTask, CanManageProject:
		return domain.IsManagementRole(f.Role)
	}
	return false
}
