package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"project-tracker/backend/internal/audit/domain"
)

// mockAuditRepo implements audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByTeam(ctx context.Context, teamID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	logger.now = func() time.Time { return fixed }

	logger.LogEvent(context.Background(), "team-1", "alice", domain.ActionMemberRemoved, "membership:bob", "reason=reorg")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.TeamID != "team-1" {
		t.Errorf("team_id = %q, want %q", entry.TeamID, "team-1")
	}
	if entry.UserID != "alice" {
		t.Errorf("user_id = %q, want %q", entry.UserID, "alice")
	}
	if entry.Action != domain.ActionMemberRemoved {
		t.Errorf("action = %q, want %q", entry.Action, domain.ActionMemberRemoved)
	}
	if entry.Resource != "membership:bob" {
		t.Errorf("resource = %q, want %q", entry.Resource, "membership:bob")
	}
	if entry.Metadata != "reason=reorg" {
		t.Errorf("metadata = %q, want %q", entry.Metadata, "reason=reorg")
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if !entry.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", entry.CreatedAt, fixed)
	}
}

func TestLogger_LogEvent_SentinelTeamID(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "", "carol", domain.ActionUserCreated, "user:carol", "")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].TeamID != SentinelTeamID {
		t.Errorf("team_id = %q, want %q", repo.entries[0].TeamID, SentinelTeamID)
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	logger := NewLogger(repo, slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.LogEvent(context.Background(), "team-1", "alice", "action", "resource", "")

	if !strings.Contains(buf.String(), "audit event not recorded") {
		t.Errorf("log = %q, want failure logged", buf.String())
	}
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	logger := NewLogger(nil, nil)
	// no-op when repo is nil
	logger.LogEvent(context.Background(), "team-1", "alice", "action", "resource", "")
}
