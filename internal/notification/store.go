package notification

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Notification is a persisted in-app notification.
type Notification struct {
	ID          string
	UserID      string
	Message     string
	Category    Category
	RelatedType string
	RelatedID   string
	Read        bool
	CreatedAt   time.Time
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store persists notifications to the notifications table for the in-app list.
type Store struct {
	db     dbtx
	logger *slog.Logger
	now    func() time.Time
}

var _ Sink = (*Store)(nil)

// NewStore returns a Store writing through db.
func NewStore(db dbtx, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Notify inserts the message. Insert failures are logged and dropped.
func (s *Store) Notify(ctx context.Context, msg Message) {
	var relType, relID sql.NullString
	if msg.Related != nil {
		relType = sql.NullString{String: msg.Related.Type, Valid: true}
		relID = sql.NullString{String: msg.Related.ID, Valid: true}
	}
	category := msg.Category
	if category == "" {
		category = CategoryInfo
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, message, category, related_type, related_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		uuid.New().String(), msg.UserID, msg.Text, string(category), relType, relID, s.now())
	if err != nil {
		s.logger.WarnContext(ctx, "store notification failed", "user_id", msg.UserID, "action", string(msg.Action), "error", err)
	}
}

// ListForUser returns the user's notifications, newest first. limit <= 0 means 50.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, message, category, related_type, related_id, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Notification
	for rows.Next() {
		var (
			n              Notification
			category       string
			relType, relID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &category, &relType, &relID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Category = Category(category)
		n.RelatedType = relType.String
		n.RelatedID = relID.String
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkAllRead marks every unread notification of the user as read and returns how many changed.
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
