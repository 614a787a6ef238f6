package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"project-tracker/backend/internal/membership/domain"
	projectdomain "project-tracker/backend/internal/project/domain"
	taskdomain "project-tracker/backend/internal/task/domain"
	teamdomain "project-tracker/backend/internal/team/domain"
	userdomain "project-tracker/backend/internal/user/domain"
)

// MembershipReader is the read surface the resolver needs to gather facts.
// Get* methods return (nil, nil) for missing rows. Implementations must not cache.
type MembershipReader interface {
	GetTeam(ctx context.Context, id string) (*teamdomain.Team, error)
	GetProject(ctx context.Context, id string) (*projectdomain.Project, error)
	GetMembership(ctx context.Context, teamID, userID string) (*domain.Membership, error)
	HasAssignedTaskInProject(ctx context.Context, projectID, userID string) (bool, error)
}

// Target is the entity a capability is checked against. Set the most specific field;
// missing parents are loaded through the reader.
type Target struct {
	Team    *teamdomain.Team
	Project *projectdomain.Project
	Task    *taskdomain.Task
}

// Resolver answers "may actor do c on target". Denial is a false result, never an error.
type Resolver struct {
	reader  MembershipReader
	decider Decider
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDecider replaces the default NativeDecider.
func WithDecider(d Decider) Option {
	return func(r *Resolver) {
		if d != nil {
			r.decider = d
		}
	}
}

// WithLogger sets the logger used for read and decision failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver returns a resolver reading through reader.
func NewResolver(reader MembershipReader, opts ...Option) *Resolver {
	r := &Resolver{reader: reader, decider: NativeDecider{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithReader returns a copy of r that reads through reader, e.g. an open transaction.
func (r *Resolver) WithReader(reader MembershipReader) *Resolver {
	cp := *r
	cp.reader = reader
	return &cp
}

// Allowed resolves c for actor on target. The error is non-nil only when facts could not be read
// or the decider failed; callers that only need a boolean should use the predicate methods.
func (r *Resolver) Allowed(ctx context.Context, c Capability, actor *userdomain.User, target Target) (bool, error) {
	if actor == nil || actor.ID == "" {
		return false, nil
	}
	f, ok, err := r.facts(ctx, c, actor, target)
	if err != nil || !ok {
		return false, err
	}
	allowed, err := r.decider.Decide(ctx, c, f)
	if err != nil {
		return false, fmt.Errorf("decide %s: %w", c, err)
	}
	return allowed, nil
}

// Require returns nil when c is granted, an error wrapping domain.ErrPermissionDenied when it is not,
// and the read error when facts could not be gathered.
func (r *Resolver) Require(ctx context.Context, c Capability, actor *userdomain.User, target Target) error {
	ok, err := r.Allowed(ctx, c, actor, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, c)
	}
	return nil
}

func (r *Resolver) check(ctx context.Context, c Capability, actor *userdomain.User, target Target) bool {
	ok, err := r.Allowed(ctx, c, actor, target)
	if err != nil {
		r.logger.ErrorContext(ctx, "permission check failed, denying",
			"capability", string(c), "user_id", actor.ID, "error", err)
		return false
	}
	return ok
}

// HasTeamAccess reports whether actor may see the team: its owner, any member, or a global manager.
func (r *Resolver) HasTeamAccess(ctx context.Context, actor *userdomain.User, team *teamdomain.Team) bool {
	return r.check(ctx, HasTeamAccess, actor, Target{Team: team})
}

// CanManageTeam reports whether actor may change the team's roster and roles.
func (r *Resolver) CanManageTeam(ctx context.Context, actor *userdomain.User, team *teamdomain.Team) bool {
	return r.check(ctx, CanManageTeam, actor, Target{Team: team})
}

// HasProjectAccess reports whether actor may see the project through its team or an assigned task.
func (r *Resolver) HasProjectAccess(ctx context.Context, actor *userdomain.User, project *projectdomain.Project) bool {
	return r.check(ctx, HasProjectAccess, actor, Target{Project: project})
}

// HasTaskAccess reports whether actor may see and update the status of task.
func (r *Resolver) HasTaskAccess(ctx context.Context, actor *userdomain.User, task *taskdomain.Task) bool {
	return r.check(ctx, HasTaskAccess, actor, Target{Task: task})
}

// CanManageTask reports whether actor may edit or reassign task. Global managers get no override here.
func (r *Resolver) CanManageTask(ctx context.Context, actor *userdomain.User, task *taskdomain.Task) bool {
	return r.check(ctx, CanManageTask, actor, Target{Task: task})
}

// CanManageProject reports whether actor may edit the project.
func (r *Resolver) CanManageProject(ctx context.Context, actor *userdomain.User, project *projectdomain.Project) bool {
	return r.check(ctx, CanManageProject, actor, Target{Project: project})
}

// CanCreateTeamMembers is delegated to managers; members they add are always created with RoleMember.
func (r *Resolver) CanCreateTeamMembers(ctx context.Context, actor *userdomain.User, team *teamdomain.Team) bool {
	return r.check(ctx, CanCreateTeamMembers, actor, Target{Team: team})
}

// CanAssignTasks reports whether actor may assign tasks in the team's projects.
func (r *Resolver) CanAssignTasks(ctx context.Context, actor *userdomain.User, team *teamdomain.Team) bool {
	return r.check(ctx, CanAssignTasks, actor, Target{Team: team})
}

// CanGenerateReports reports whether actor may run team reports.
func (r *Resolver) CanGenerateReports(ctx context.Context, actor *userdomain.User, team *teamdomain.Team) bool {
	return r.check(ctx, CanGenerateReports, actor, Target{Team: team})
}

// CanViewMember reports whether actor may view member's profile within team:
// the actor needs team access and must either be the member or able to manage the team.
func (r *Resolver) CanViewMember(ctx context.Context, actor *userdomain.User, team *teamdomain.Team, member *userdomain.User) bool {
	if !r.HasTeamAccess(ctx, actor, team) {
		return false
	}
	return actor.Is(member) || r.CanManageTeam(ctx, actor, team)
}

// facts loads the target chain and the actor's relationship to it. ok is false when a parent
// entity no longer exists, which denies.
func (r *Resolver) facts(ctx context.Context, c Capability, actor *userdomain.User, target Target) (Facts, bool, error) {
	f := Facts{GlobalManager: actor.IsProjectManager}
	task, project, team := target.Task, target.Project, target.Team

	if task != nil {
		f.TaskAssignee = actor.IsID(task.AssignedTo)
		f.TaskCreator = actor.IsID(task.CreatedBy)
		if project == nil || project.ID != task.ProjectID {
			p, err := r.reader.GetProject(ctx, task.ProjectID)
			if err != nil {
				return f, false, fmt.Errorf("get project %s: %w", task.ProjectID, err)
			}
			if p == nil {
				return f, false, nil
			}
			project = p
		}
	}
	if project != nil {
		f.ProjectManager = actor.IsID(project.ManagerID)
		if team == nil || team.ID != project.TeamID {
			t, err := r.reader.GetTeam(ctx, project.TeamID)
			if err != nil {
				return f, false, fmt.Errorf("get team %s: %w", project.TeamID, err)
			}
			if t == nil {
				return f, false, nil
			}
			team = t
		}
	}
	if team == nil {
		return f, false, nil
	}
	f.TeamOwner = team.IsOwner(actor.ID)

	m, err := r.reader.GetMembership(ctx, team.ID, actor.ID)
	if err != nil {
		return f, false, fmt.Errorf("get membership: %w", err)
	}
	if m != nil {
		f.Role = m.Role
	}

	if project != nil && (c == HasProjectAccess || c == HasTaskAccess) {
		assigned, err := r.reader.HasAssignedTaskInProject(ctx, project.ID, actor.ID)
		if err != nil {
			return f, false, fmt.Errorf("check task assignment: %w", err)
		}
		f.AssignedInProject = assigned
	}
	return f, true, nil
}
