// Package api is the client for the booking backend's notification REST
// endpoints, used to seed the feed and as the polling fallback.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"futsal_notifier/internal/common"
	"futsal_notifier/internal/config"
	"futsal_notifier/internal/domain"
	"futsal_notifier/internal/ws"

	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FetchResult is the decoded notification feed.
type FetchResult struct {
	Success       bool
	Notifications []domain.Notification
	UnreadCount   int
}

// Client talks to {base}/notifications.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *zap.Logger
}

// NewClient returns an error if cfg.APIBaseURL is empty.
func NewClient(cfg *config.Config, tokens TokenSource, logger *zap.Logger) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		tokens:     tokens,
		logger:     logger.Named("api"),
	}, nil
}

type notificationRow struct {
	ID        ws.FlexID       `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Priority  string          `json:"priority"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	CreatedAt string          `json:"created_at"`
	Read      *bool           `json:"read"`
	IsRead    *bool           `json:"is_read"`
}

func (r notificationRow) toDomain() domain.Notification {
	n := domain.Notification{
		ID:       r.ID.String(),
		Type:     domain.NotificationType(r.Type),
		Title:    r.Title,
		Message:  r.Message,
		Priority: domain.Priority(r.Priority),
		Data:     r.Data,
	}
	if n.Type == "" {
		n.Type = domain.TypeNotification
	}
	switch {
	case r.Read != nil:
		n.Read = *r.Read
	case r.IsRead != nil:
		n.Read = *r.IsRead
	}
	for _, ts := range []string{r.Timestamp, r.CreatedAt} {
		if ts == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			n.Timestamp = t
			break
		}
	}
	return n
}

type feedResponse struct {
	Success     bool              `json:"success"`
	Data        []notificationRow `json:"data"`
	UnreadCount int               `json:"unread_count"`
	Message     string            `json:"message"`
}

// FetchNotifications returns up to limit recent notifications and the unread count.
func (c *Client) FetchNotifications(ctx context.Context, limit int) (*FetchResult, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var body feedResponse
	if err := c.do(ctx, http.MethodGet, "/notifications?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	if !body.Success {
		msg := body.Message
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, fmt.Errorf("api: fetch notifications: %s", msg)
	}

	out := &FetchResult{Success: true, UnreadCount: body.UnreadCount}
	for _, row := range body.Data {
		if row.ID == "" {
			continue
		}
		out.Notifications = append(out.Notifications, row.toDomain())
	}
	return out, nil
}

// MarkAsRead marks one notification read.
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil)
}

// MarkAllAsRead issues one MarkAsRead per id. Every id is attempted; the
// joined errors are returned.
func (c *Client) MarkAllAsRead(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := c.MarkAsRead(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("api: read token: %w", err)
		}
		if token != "" {
			req.Header.Set(common.AuthorizationHeader, common.AuthorizationTypeBearer+" "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug("Backend returned error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("api: %s %s: %w", method, path, statusError(resp.StatusCode, snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func statusError(status int, body []byte) *common.APIError {
	var apiErr *common.APIError
	switch status {
	case http.StatusUnauthorized:
		apiErr = common.NewAPIError(status, common.ErrUnauthorized.Code, "Backend rejected the stored token.")
	case http.StatusNotFound:
		apiErr = common.NewAPIError(status, common.ErrNotFound.Code, "Notification not found on backend.")
	default:
		apiErr = common.NewAPIError(http.StatusBadGateway, "UPSTREAM_ERROR", fmt.Sprintf("Backend returned HTTP %d.", status))
	}
	if len(body) > 0 {
		apiErr = apiErr.WithDetails(string(body))
	}
	return apiErr
}
