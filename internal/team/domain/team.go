package domain

import (
	"errors"
	"strings"
	"time"
)

// Team is a group of users owned by exactly one user. Name is unique per owner.
type Team struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate validates the team for persistence. Returns an error describing the first validation failure.
func (t *Team) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.OwnerID == "" {
		return errors.New("owner_id is required")
	}
	return nil
}

// IsOwner reports whether userID owns the team.
func (t *Team) IsOwner(userID string) bool {
	return t != nil && userID != "" && t.OwnerID == userID
}
