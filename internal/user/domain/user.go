package domain

import (
	"errors"
	"time"
)

// User is the core user entity.
type User struct {
	ID       string
	Email    string
	Username string
	Name     string
	// IsProjectManager is the organization-wide flag granting team and project capabilities
	// independent of team membership.
	IsProjectManager bool
	Status           UserStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

// DisplayName returns Name when set, otherwise Username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Is reports whether u and other are the same non-nil user.
func (u *User) Is(other *User) bool {
	return u != nil && other != nil && u.ID != "" && u.ID == other.ID
}

// IsID reports whether u is the non-nil user with the given id. A nil id never matches.
func (u *User) IsID(id *string) bool {
	return u != nil && id != nil && u.ID != "" && u.ID == *id
}
