package domain

import "time"

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	TeamID    string
	UserID    string
	Action    string
	Resource  string
	Metadata  string
	CreatedAt time.Time
}

// Actions recorded for membership and task changes.
const (
	ActionUserCreated       = "user_created"
	ActionTeamCreated       = "team_created"
	ActionTeamDeleted       = "team_deleted"
	ActionMemberAdded       = "member_added"
	ActionMemberRoleChanged = "member_role_changed"
	ActionMemberRemoved     = "member_removed"
	ActionTaskStatusChanged = "task_status_changed"
)
