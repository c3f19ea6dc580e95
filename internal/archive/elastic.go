package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"futsal_notifier/internal/config"
	platformElasticsearch "futsal_notifier/internal/platform/elasticsearch"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// ElasticArchiver writes records into the notifications index.
type ElasticArchiver struct {
	client  *platformElasticsearch.ESClientWrapper
	index   string
	refresh string
	logger  *zap.Logger
}

func NewElasticArchiver(client *platformElasticsearch.ESClientWrapper, logger *zap.Logger) *ElasticArchiver {
	return &ElasticArchiver{
		client: client,
		index:  platformElasticsearch.NotificationsIndexName,
		logger: logger.Named("archive"),
	}
}

// WithRefresh sets the bulk refresh policy (true, false, wait_for).
func (a *ElasticArchiver) WithRefresh(policy string) *ElasticArchiver {
	a.refresh = policy
	return a
}

func (a *ElasticArchiver) Enabled() bool { return true }

// IndexBatch bulk-indexes records keyed by user and notification id, so
// re-archiving the same notification overwrites it. Returns how many
// documents were stored.
func (a *ElasticArchiver) IndexBatch(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var body strings.Builder
	for _, r := range records {
		doc, err := json.Marshal(r)
		if err != nil {
			a.logger.Error("Failed to encode archive record", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		meta, _ := json.Marshal(map[string]any{"index": map[string]string{"_index": a.index, "_id": docID(r)}})
		body.Write(meta)
		body.WriteByte('\n')
		body.Write(doc)
		body.WriteByte('\n')
	}
	if body.Len() == 0 {
		return 0, nil
	}

	res, err := esapi.BulkRequest{
		Body:    strings.NewReader(body.String()),
		Refresh: a.refresh,
	}.Do(ctx, a.client.Client)
	if err != nil {
		return 0, fmt.Errorf("archive: bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("archive: bulk request returned %s", res.Status())
	}

	var bulk struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				ID     string         `json:"_id"`
				Status int            `json:"status"`
				Error  map[string]any `json:"error,omitempty"`
			} `json:"index"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return 0, fmt.Errorf("archive: decode bulk response: %w", err)
	}

	stored, failed := 0, 0
	for _, item := range bulk.Items {
		if item.Index.Error != nil {
			a.logger.Warn("Failed to archive notification",
				zap.String("doc_id", item.Index.ID),
				zap.Int("status", item.Index.Status),
				zap.Any("error", item.Index.Error),
			)
			failed++
			continue
		}
		stored++
	}
	if failed > 0 {
		return stored, fmt.Errorf("archive: %d of %d documents failed", failed, len(bulk.Items))
	}
	return stored, nil
}

// Search runs a full-text query over title and message, newest first.
// An empty query lists the user's most recent records.
func (a *ElasticArchiver) Search(ctx context.Context, userID, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	boolQuery := map[string]any{}
	if query != "" {
		boolQuery["must"] = map[string]any{
			"multi_match": map[string]any{"query": query, "fields": []string{"title^2", "message"}},
		}
	}
	if userID != "" {
		boolQuery["filter"] = []any{map[string]any{"term": map[string]any{"user_id": userID}}}
	}
	reqBody, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"sort":  []any{map[string]any{"timestamp": map[string]string{"order": "desc"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: encode query: %w", err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{a.index},
		Body:  strings.NewReader(string(reqBody)),
		Size:  &limit,
	}.Do(ctx, a.client.Client)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("archive: search returned %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source Record `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("archive: decode search response: %w", err)
	}
	out := make([]Record, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func docID(r Record) string {
	if r.UserID == "" {
		return r.ID
	}
	return r.UserID + ":" + r.ID
}

// New connects to Elasticsearch when configured, creating the index if
// needed, and falls back to NopArchiver otherwise.
func New(cfg *config.Config, logger *zap.Logger) Archiver {
	if cfg.ElasticsearchURL == "" {
		logger.Info("Elasticsearch not configured, notification archive disabled")
		return NopArchiver{}
	}
	client, err := platformElasticsearch.NewClient(cfg, logger)
	if err != nil {
		logger.Warn("Notification archive disabled", zap.Error(err))
		return NopArchiver{}
	}
	if err := platformElasticsearch.CreateNotificationsIndexIfNotExists(context.Background(), client, logger); err != nil {
		logger.Warn("Notification archive disabled", zap.Error(err))
		return NopArchiver{}
	}
	return NewElasticArchiver(client, logger)
}
