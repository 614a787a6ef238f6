package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"project-tracker/backend/internal/audit"
	auditdomain "project-tracker/backend/internal/audit/domain"
	"project-tracker/backend/internal/membership/domain"
	"project-tracker/backend/internal/membership/repository"
	"project-tracker/backend/internal/notification"
	"project-tracker/backend/internal/platform/rbac"
	taskdomain "project-tracker/backend/internal/task/domain"
	userdomain "project-tracker/backend/internal/user/domain"
)

// StatusService changes task status for anyone with task access.
type StatusService struct {
	repo     repository.Repository
	resolver *rbac.Resolver
	notifier notification.Sink
	audit    audit.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewStatusService returns a StatusService. Nil notifier, audit or logger fall back to defaults.
func NewStatusService(repo repository.Repository, resolver *rbac.Resolver, notifier notification.Sink, auditLogger audit.AuditLogger, logger *slog.Logger) *StatusService {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = rbac.NewResolver(repo, rbac.WithLogger(logger))
	}
	if notifier == nil {
		notifier = notification.LogSink{Logger: logger}
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &StatusService{
		repo:     repo,
		resolver: resolver,
		notifier: notifier,
		audit:    auditLogger,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UpdateStatus sets the task's status. The actor needs HasTaskAccess; the assignee is notified
// when someone else makes the change. StatusUnassigned is only accepted for a task with no assignee.
func (s *StatusService) UpdateStatus(ctx context.Context, actor *userdomain.User, taskID string, status taskdomain.Status) (*taskdomain.Task, error) {
	var (
		updated  *taskdomain.Task
		previous taskdomain.Status
		teamID   string
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
		}
		if err := s.resolver.WithReader(tx).Require(ctx, rbac.HasTaskAccess, actor, rbac.Target{Task: task}); err != nil {
			return err
		}
		if !status.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
		}
		if status == taskdomain.StatusUnassigned && task.AssignedTo != nil {
			return fmt.Errorf("%w: %q while the task has an assignee", domain.ErrInvalidStatus, status)
		}
		project, err := tx.GetProject(ctx, task.ProjectID)
		if err != nil {
			return err
		}
		if project != nil {
			teamID = project.TeamID
		}
		previous = task.Status
		if previous == status {
			updated = task
			return nil
		}
		task.ApplyStatus(status, s.now())
		if err := tx.UpdateTaskStatus(ctx, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	if previous == status {
		return updated, nil
	}

	if updated.AssignedTo != nil && !actor.IsID(updated.AssignedTo) {
		s.notifier.Notify(ctx, notification.Message{
			UserID:   *updated.AssignedTo,
			Text:     fmt.Sprintf("Task '%s' status updated to %s by %s", updated.Title, status, actor.Username),
			Category: notification.CategoryInfo,
			Action:   notification.ActionTaskUpdated,
			Related:  &notification.Entity{Type: "task", ID: updated.ID},
		})
	}
	s.audit.LogEvent(ctx, teamID, actor.ID, auditdomain.ActionTaskStatusChanged, "task:"+updated.ID,
		"from="+string(previous)+" to="+string(status))
	s.logger.InfoContext(ctx, "task status updated", "task_id", updated.ID, "status", status)
	return updated, nil
}
