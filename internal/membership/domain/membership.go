package domain

import (
	"errors"
	"time"
)

// Membership links a user to a team with a role. At most one exists per (team, user).
type Membership struct {
	ID     string
	TeamID string
	UserID string
	Role   Role
	// CreatedBy is the user who added the member; nil when unknown or the creator was deleted.
	CreatedBy *string
	JoinedAt  time.Time
}

// Validate validates the membership for persistence. Returns an error describing the first validation failure.
// It does not infer or adjust the role; role assignment is owned by the lifecycle.
func (m *Membership) Validate() error {
	if m.TeamID == "" {
		return errors.New("team_id is required")
	}
	if m.UserID == "" {
		return errors.New("user_id is required")
	}
	if !m.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}
