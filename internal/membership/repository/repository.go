package repository

import (
	"context"
	"time"

	"project-tracker/backend/internal/membership/domain"
	projectdomain "project-tracker/backend/internal/project/domain"
	taskdomain "project-tracker/backend/internal/task/domain"
	teamdomain "project-tracker/backend/internal/team/domain"
	userdomain "project-tracker/backend/internal/user/domain"
)

// Reader is the read surface the permission resolver needs. Implementations must not cache.
// Get* methods return (nil, nil) for missing rows.
type Reader interface {
	GetTeam(ctx context.Context, id string) (*teamdomain.Team, error)
	GetProject(ctx context.Context, id string) (*projectdomain.Project, error)
	// GetMembership returns the membership for (teamID, userID), or nil if none exists.
	GetMembership(ctx context.Context, teamID, userID string) (*domain.Membership, error)
	// HasAssignedTaskInProject reports whether any task in the project is assigned to userID.
	HasAssignedTaskInProject(ctx context.Context, projectID, userID string) (bool, error)
}

// Tx is one unit of work. Every write made through a Tx commits or rolls back together.
type Tx interface {
	Reader

	GetUser(ctx context.Context, id string) (*userdomain.User, error)
	CreateUser(ctx context.Context, u *userdomain.User) error

	// LockTeam reads the team row with SELECT ... FOR UPDATE; concurrent lockers of the same team wait.
	LockTeam(ctx context.Context, teamID string) (*teamdomain.Team, error)
	CreateTeam(ctx context.Context, t *teamdomain.Team) error
	// DeleteTeam deletes the team; memberships and projects (and their tasks) cascade.
	DeleteTeam(ctx context.Context, teamID string) error

	ListMemberships(ctx context.Context, teamID string) ([]*domain.Membership, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
	// UpdateRole sets the role and returns the updated membership, or nil if no row matched.
	UpdateRole(ctx context.Context, teamID, userID string, role domain.Role) (*domain.Membership, error)
	// DeleteMembership hard-deletes the row and reports whether one existed.
	DeleteMembership(ctx context.Context, teamID, userID string) (bool, error)

	CreateProject(ctx context.Context, p *projectdomain.Project) error

	// LockTask reads the task row with SELECT ... FOR UPDATE.
	LockTask(ctx context.Context, taskID string) (*taskdomain.Task, error)
	CreateTask(ctx context.Context, t *taskdomain.Task) error
	UpdateTaskStatus(ctx context.Context, t *taskdomain.Task) error
	// UnassignTasks clears the assignee of every task in the team's projects assigned to userID,
	// sets status unassigned, and returns the affected task IDs.
	UnassignTasks(ctx context.Context, teamID, userID string, at time.Time) ([]string, error)
}

// Repository defines persistence for teams, memberships and the task rows membership changes touch.
type Repository interface {
	Reader

	GetUser(ctx context.Context, id string) (*userdomain.User, error)
	GetTask(ctx context.Context, id string) (*taskdomain.Task, error)
	ListMemberships(ctx context.Context, teamID string) ([]*domain.Membership, error)

	// WithinTx runs fn in one transaction; fn's error rolls back, nil commits.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
