package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	teamdomain "project-tracker/backend/internal/team/domain"
	userdomain "project-tracker/backend/internal/user/domain"
)

const defaultTimeout = 15 * time.Second

// Sink sends transactional email. SendRemovalNotice reports delivery success and never fails the caller.
type Sink interface {
	SendRemovalNotice(ctx context.Context, user *userdomain.User, team *teamdomain.Team, reason string) bool
}

// RemovalSubject returns the subject line of the removal notice for team.
func RemovalSubject(team *teamdomain.Team) string {
	return fmt.Sprintf("You have been removed from %s", team.Name)
}

// RemovalBody returns the plain-text body of the removal notice.
func RemovalBody(user *userdomain.User, team *teamdomain.Team, reason string) string {
	body := fmt.Sprintf("Hello %s,\n\nYou have been removed from the team %q.", user.DisplayName(), team.Name)
	if reason != "" {
		body += "\n\nReason: " + reason
	}
	return body + "\n"
}

// HTTPClient sends mail through a JSON mail API.
type HTTPClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

var _ Sink = (*HTTPClient)(nil)

// NewHTTPClient returns a client posting to baseURL with the given API key and From address.
func NewHTTPClient(apiKey, baseURL, sender string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		Logger:     logger,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// SendRemovalNotice emails the user that they were removed from team. Failures are logged and reported as false.
func (c *HTTPClient) SendRemovalNotice(ctx context.Context, user *userdomain.User, team *teamdomain.Team, reason string) bool {
	if user == nil || team == nil || user.Email == "" {
		c.Logger.WarnContext(ctx, "removal notice skipped: no recipient")
		return false
	}
	err := c.send(ctx, sendRequest{
		From:    c.Sender,
		To:      []string{user.Email},
		Subject: RemovalSubject(team),
		Text:    RemovalBody(user, team, reason),
	})
	if err != nil {
		c.Logger.WarnContext(ctx, "removal notice failed", "user_id", user.ID, "team_id", team.ID, "error", err)
		return false
	}
	return true
}

func (c *HTTPClient) send(ctx context.Context, body sendRequest) error {
	if c.APIKey == "" || c.BaseURL == "" {
		return fmt.Errorf("email: API not configured")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// LogSink logs the notice instead of sending it. Used when no mail API is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) SendRemovalNotice(ctx context.Context, user *userdomain.User, team *teamdomain.Team, reason string) bool {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	if user == nil || team == nil {
		return false
	}
	l.InfoContext(ctx, "removal notice", "to", user.Email, "subject", RemovalSubject(team), "reason", reason)
	return true
}
