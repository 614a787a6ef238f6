package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultChannelPrefix = "tracker:notifications:"

// payload is the JSON published for live clients.
type payload struct {
	UserID      string `json:"user_id"`
	Message     string `json:"message"`
	Category    string `json:"category"`
	Action      string `json:"action,omitempty"`
	RelatedType string `json:"related_type,omitempty"`
	RelatedID   string `json:"related_id,omitempty"`
}

// RedisPublisher publishes each notification on a per-user channel so connected clients see it immediately.
type RedisPublisher struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

var _ Sink = (*RedisPublisher)(nil)

// NewRedisPublisher connects to Redis and verifies the connection with a ping.
func NewRedisPublisher(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return newRedisPublisher(client, logger), nil
}

func newRedisPublisher(client redis.UniversalClient, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, logger: logger, prefix: defaultChannelPrefix, timeout: 250 * time.Millisecond}
}

// Channel returns the channel notifications for userID are published on.
func (p *RedisPublisher) Channel(userID string) string {
	return p.prefix + userID
}

// Notify publishes the message. Failures are logged and dropped.
func (p *RedisPublisher) Notify(ctx context.Context, msg Message) {
	raw, err := encode(msg)
	if err != nil {
		p.logger.WarnContext(ctx, "encode notification failed", "user_id", msg.UserID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.Channel(msg.UserID), raw).Err(); err != nil {
		p.logger.WarnContext(ctx, "publish notification failed", "user_id", msg.UserID, "error", err)
	}
}

func (p *RedisPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func encode(msg Message) ([]byte, error) {
	pl := payload{
		UserID:   msg.UserID,
		Message:  msg.Text,
		Category: string(msg.Category),
		Action:   string(msg.Action),
	}
	if msg.Related != nil {
		pl.RelatedType = msg.Related.Type
		pl.RelatedID = msg.Related.ID
	}
	return json.Marshal(pl)
}
