package domain

import (
	"errors"
	"time"
)

// Project belongs to exactly one team and optionally has a manager.
type Project struct {
	ID          string
	TeamID      string
	Name        string
	Description string
	// ManagerID need not hold a membership in the team. Nil after the manager is deleted.
	ManagerID *string
	Status    ProjectStatus
	StartDate *time.Time
	EndDate   *time.Time
	CreatedAt time.Time
}

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
)

// Validate validates the project for persistence. Returns an error describing the first validation failure.
func (p *Project) Validate() error {
	if p.TeamID == "" {
		return errors.New("team_id is required")
	}
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Status == "" {
		p.Status = ProjectStatusActive
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return errors.New("end_date must not be before start_date")
	}
	return nil
}
