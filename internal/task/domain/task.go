package domain

import (
	"errors"
	"time"
)

// Task belongs to a project. AssignedTo is nil when the task is unassigned.
type Task struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	AssignedTo  *string
	CreatedBy   *string
	Status      Status
	DueDate     *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inprogress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	// StatusUnassigned marks a task whose assignee was removed from the owning team.
	StatusUnassigned Status = "unassigned"
)

// Valid reports whether s is a known task status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone, StatusUnassigned:
		return true
	}
	return false
}

// Validate validates the task for persistence. Returns an error describing the first validation failure.
func (t *Task) Validate() error {
	if t.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if t.Title == "" {
		return errors.New("title is required")
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if !t.Status.Valid() {
		return errors.New("invalid status")
	}
	return nil
}

// ApplyStatus sets the status and keeps CompletedAt consistent: entering done stamps it,
// leaving done clears it.
func (t *Task) ApplyStatus(s Status, now time.Time) {
	if s == StatusDone && t.Status != StatusDone {
		at := now
		t.CompletedAt = &at
	}
	if s != StatusDone {
		t.CompletedAt = nil
	}
	t.Status = s
	t.UpdatedAt = now
}
