package elasticsearch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"futsal_notifier/internal/config"
)

// ESClientWrapper wraps the elasticsearch.Client so wire can tell it apart.
type ESClientWrapper struct {
	*elasticsearch.Client
}

// ZapLogger adapts zap.Logger to elastictransport.Logger.
type ZapLogger struct {
	logger *zap.Logger
}

var _ elastictransport.Logger = (*ZapLogger)(nil)

// LogRoundTrip logs request metrics at debug level.
func (l *ZapLogger) LogRoundTrip(req *http.Request, res *http.Response, err error, start time.Time, dur time.Duration) error {
	statusCode := 0
	if res != nil {
		statusCode = res.StatusCode
	}
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status_code", statusCode),
		zap.Duration("duration", dur),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.logger.Debug("Elasticsearch RoundTrip", fields...)
	return nil
}

func (l *ZapLogger) RequestBodyEnabled() bool { return false }
func (l *ZapLogger) ResponseBodyEnabled() bool { return false }

// NewClient connects to cfg.ElasticsearchURL and verifies the cluster answers.
func NewClient(cfg *config.Config, logger *zap.Logger) (*ESClientWrapper, error) {
	if cfg.ElasticsearchURL == "" {
		return nil, fmt.Errorf("ElasticsearchURL is not configured in application config")
	}

	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.ElasticsearchURL},
		Logger:    &ZapLogger{logger: logger.Named("elasticsearch_client")},
		// Retry on 429 TooManyRequests and 502/503/504.
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
		MaxRetries: 3,
	}

	esClient, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		logger.Error("Error creating Elasticsearch client", zap.Error(err))
		return nil, fmt.Errorf("elasticsearch.NewClient: %w", err)
	}

	res, err := esClient.Info()
	if err != nil {
		logger.Error("Error pinging Elasticsearch", zap.Error(err))
		return nil, fmt.Errorf("esClient.Info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		logger.Error("Elasticsearch client initialization error",
			zap.String("status", res.Status()),
			zap.Any("error_details", decodeErrorBody(res.Body)),
		)
		return nil, fmt.Errorf("elasticsearch client initialization error: %s", res.Status())
	}

	logger.Info("Elasticsearch client initialized and connected successfully",
		zap.String("url", cfg.ElasticsearchURL),
		zap.String("es_version", elasticsearch.Version),
	)
	return &ESClientWrapper{Client: esClient}, nil
}

// decodeErrorBody returns the decoded JSON error, or the raw text when it is not JSON.
func decodeErrorBody(r io.Reader) any {
	body, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return fmt.Sprintf("failed to read response body: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body)
	}
	return parsed
}
