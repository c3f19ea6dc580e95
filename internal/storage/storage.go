// Package storage is the agent's key/value "local storage": the place the
// auth flow writes the bearer token and the push channel reads it back on
// every (re)connect.
package storage

import (
	"context"
	"errors"
	"fmt"

	"futsal_notifier/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Well-known keys.
const (
	TokenKey                  = "token"
	NotificationPermissionKey = "notification_permission"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Store is a string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// NewStore picks the backend for cfg.StorageDriver. db may be nil for the redis driver.
func NewStore(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (Store, error) {
	switch cfg.StorageDriver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("storage: redis ping %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("Local storage backed by redis", zap.String("addr", cfg.RedisAddr))
		return NewRedisStore(client, cfg.RedisPrefix), nil
	case "sqlite", "postgres":
		if db == nil {
			return nil, fmt.Errorf("storage: %s driver selected but no database handle", cfg.StorageDriver)
		}
		store, err := NewGORMStore(db)
		if err != nil {
			return nil, err
		}
		logger.Info("Local storage backed by SQL database", zap.String("driver", cfg.StorageDriver))
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.StorageDriver)
	}
}

// TokenSource reads the persisted bearer token. It never writes.
type TokenSource struct {
	store Store
}

func NewTokenSource(store Store) *TokenSource {
	return &TokenSource{store: store}
}

// Token returns the stored token, or "" when none is stored.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	tok, err := t.store.Get(ctx, TokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return tok, err
}
