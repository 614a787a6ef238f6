package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"project-tracker/backend/internal/audit/domain"
	auditrepo "project-tracker/backend/internal/audit/repository"
)

// SentinelTeamID is the team_id used for audit events that have no team (e.g. user_created).
const SentinelTeamID = "_system"

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, teamID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo   auditrepo.Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. A nil logger uses slog.Default().
func NewLogger(repo auditrepo.Repository, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, teamID, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	if teamID == "" {
		teamID = SentinelTeamID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TeamID:    teamID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		CreatedAt: l.now(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.WarnContext(ctx, "audit event not recorded", "action", action, "resource", resource, "error", err)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string, string) {}
