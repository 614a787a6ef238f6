package notification

import (
	"context"
	"log/slog"
	"sync"
)

// Category is the severity shown next to an in-app notification.
type Category string

const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryWarning Category = "warning"
	CategoryError   Category = "error"
)

// Action identifies the lifecycle event that produced a notification.
type Action string

const (
	ActionTeamCreated    Action = "team_created"
	ActionTeamJoined     Action = "team_joined"
	ActionMemberAdded    Action = "member_added"
	ActionRoleChanged    Action = "role_changed"
	ActionTeamRemoved    Action = "team_removed"
	ActionTaskUpdated    Action = "task_updated"
	ActionTaskUnassigned Action = "task_unassigned"
)

// Entity references the object a notification is about.
type Entity struct {
	Type string
	ID   string
}

// Message is one notification for one user.
type Message struct {
	UserID   string
	Text     string
	Category Category
	Action   Action
	Related  *Entity
}

// Sink delivers notifications. Notify never fails the caller; implementations log their own errors.
type Sink interface {
	Notify(ctx context.Context, msg Message)
}

// Multi fans a message out to every sink in order.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, msg Message) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, msg)
		}
	}
}

// LogSink writes notifications to a structured logger. Used in development and when no store is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, msg Message) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	attrs := []any{"user_id", msg.UserID, "category", string(msg.Category), "action", string(msg.Action)}
	if msg.Related != nil {
		attrs = append(attrs, "related_type", msg.Related.Type, "related_id", msg.Related.ID)
	}
	l.InfoContext(ctx, msg.Text, attrs...)
}

// Recorder keeps every message in memory; intended for tests and local tooling.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// For returns the recorded messages addressed to userID.
func (r *Recorder) For(userID string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}
