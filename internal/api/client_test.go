package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"futsal_notifier/internal/common"
	"futsal_notifier/internal/config"
	"futsal_notifier/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedToken string

func (f fixedToken) Token(context.Context) (string, error) { return string(f), nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(&config.Config{APIBaseURL: srv.URL + "/api/", APITimeout: 2 * time.Second}, fixedToken("tok-abc"), zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(&config.Config{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestClient_FetchNotifications(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/notifications", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"unread_count": 2,
			"data": [
				{"id": 17, "type": "booking_update", "title": "Booking", "message": "Confirmed", "is_read": false, "created_at": "2026-10-01T10:00:00Z"},
				{"id": "n2", "title": "Promo", "message": "Half price", "read": true},
				{"title": "no id, skipped"}
			]
		}`))
	})

	res, err := c.FetchNotifications(context.Background(), 50)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.UnreadCount)
	require.Len(t, res.Notifications, 2)

	first := res.Notifications[0]
	assert.Equal(t, "17", first.ID)
	assert.Equal(t, domain.TypeBookingUpdate, first.Type)
	assert.False(t, first.Read)
	assert.Equal(t, time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC), first.Timestamp.UTC())

	second := res.Notifications[1]
	assert.Equal(t, "n2", second.ID)
	assert.Equal(t, domain.TypeNotification, second.Type)
	assert.True(t, second.Read)
}

func TestClient_FetchNotificationsBackendFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "message": "maintenance"}`))
	})
	_, err := c.FetchNotifications(context.Background(), 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestClient_NonSuccessStatusIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	})

	_, err := c.FetchNotifications(context.Background(), 10)
	require.Error(t, err)
	apiErr, ok := common.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Contains(t, apiErr.Details, "token expired")
}

func TestClient_MarkAsRead(t *testing.T) {
	var gotPath, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.MarkAsRead(context.Background(), "n1"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/notifications/n1/read", gotPath)
}

func TestClient_MarkAllAsReadAttemptsEveryID(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/api/notifications/n2/read" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	err := c.MarkAllAsRead(context.Background(), []string{"n1", "n2", "n3"})
	require.Error(t, err)
	apiErr, ok := common.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, []string{
		"/api/notifications/n1/read",
		"/api/notifications/n2/read",
		"/api/notifications/n3/read",
	}, seen)
}

func TestClient_MarkAllAsReadEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	assert.NoError(t, c.MarkAllAsRead(context.Background(), nil))
}
