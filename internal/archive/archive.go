// Package archive keeps a searchable history of every notification the agent
// has surfaced, beyond the 50 entries held in memory.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"futsal_notifier/internal/domain"
)

// Source tells where a record entered the feed.
type Source string

const (
	SourceLive Source = "live"
	SourceREST Source = "rest"
)

// Record is one archived notification.
type Record struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Type       string          `json:"type"`
	Priority   string          `json:"priority,omitempty"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Source     Source          `json:"source"`
	Timestamp  time.Time       `json:"timestamp"`
	ArchivedAt time.Time       `json:"archived_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// FromNotification builds the record for n as seen by userID.
func FromNotification(userID string, n domain.Notification, src Source) Record {
	return Record{
		ID:         n.ID,
		UserID:     userID,
		Type:       string(n.Type),
		Priority:   string(n.Priority),
		Title:      n.Title,
		Message:    n.Message,
		Source:     src,
		Timestamp:  n.Timestamp,
		ArchivedAt: time.Now().UTC(),
		Data:       n.Data,
	}
}

// Archiver stores and searches records.
type Archiver interface {
	IndexBatch(ctx context.Context, records []Record) (int, error)
	Search(ctx context.Context, userID, query string, limit int) ([]Record, error)
	Enabled() bool
}

// NopArchiver is used when no search backend is configured.
type NopArchiver struct{}

func (NopArchiver) IndexBatch(context.Context, []Record) (int, error) { return 0, nil }

func (NopArchiver) Search(context.Context, string, string, int) ([]Record, error) { return nil, nil }

func (NopArchiver) Enabled() bool { return false }

var (
	_ Archiver = NopArchiver{}
	_ Archiver = (*ElasticArchiver)(nil)
)
