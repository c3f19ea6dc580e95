package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

const NotificationsIndexName = "notifications"

func notificationsMapping() (string, error) {
	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":          map[string]any{"type": "keyword"},
				"user_id":     map[string]any{"type": "keyword"},
				"type":        map[string]any{"type": "keyword"},
				"priority":    map[string]any{"type": "keyword"},
				"title":       map[string]any{"type": "text", "fields": map[string]any{"keyword": map[string]any{"type": "keyword", "ignore_above": 256}}},
				"message":     map[string]any{"type": "text"},
				"source":      map[string]any{"type": "keyword"},
				"timestamp":   map[string]any{"type": "date"},
				"archived_at": map[string]any{"type": "date"},
				"data":        map[string]any{"type": "object", "enabled": false},
			},
		},
	}
	b, err := json.Marshal(mapping)
	if err != nil {
		return "", fmt.Errorf("error marshalling notifications mapping to JSON: %w", err)
	}
	return string(b), nil
}

// CreateNotificationsIndexIfNotExists creates the notifications index with
// its mapping unless it already exists.
func CreateNotificationsIndexIfNotExists(ctx context.Context, client *ESClientWrapper, logger *zap.Logger) error {
	log := logger.Named("elasticsearch_index_setup")

	res, err := esapi.IndicesExistsRequest{Index: []string{NotificationsIndexName}}.Do(ctx, client.Client)
	if err != nil {
		return fmt.Errorf("error checking if notifications index exists: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		log.Info("Notifications index already exists", zap.String("index_name", NotificationsIndexName))
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("error checking if notifications index exists: status %s", res.Status())
	}

	mappingJSON, err := notificationsMapping()
	if err != nil {
		return err
	}

	createRes, err := esapi.IndicesCreateRequest{
		Index: NotificationsIndexName,
		Body:  strings.NewReader(mappingJSON),
	}.Do(ctx, client.Client)
	if err != nil {
		return fmt.Errorf("error creating notifications index %s: %w", NotificationsIndexName, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		log.Error("Failed to create notifications index",
			zap.String("status", createRes.Status()),
			zap.Any("error_details", decodeErrorBody(createRes.Body)),
		)
		return fmt.Errorf("failed to create notifications index %s: status %s", NotificationsIndexName, createRes.Status())
	}

	log.Info("Notifications index created successfully", zap.String("index_name", NotificationsIndexName))
	return nil
}
