// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the notification agent.
type Config struct {
	// Local HTTP surface
	GinMode       string        `mapstructure:"GIN_MODE"`
	ServerHost    string        `mapstructure:"SERVER_HOST"`
	ServerPort    string        `mapstructure:"SERVER_PORT"`
	ServerTimeout time.Duration `mapstructure:"-"` // SERVER_TIMEOUT_SECONDS

	// Logging Configuration
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Push channel
	WSURL                  string        `mapstructure:"WS_URL"`
	WSHandshakeTimeout     time.Duration `mapstructure:"-"` // WS_HANDSHAKE_TIMEOUT_SECONDS
	HeartbeatInterval      time.Duration `mapstructure:"-"` // HEARTBEAT_INTERVAL_SECONDS
	HeartbeatTimeout       time.Duration `mapstructure:"-"` // HEARTBEAT_TIMEOUT_SECONDS
	ReconnectBaseInterval  time.Duration `mapstructure:"-"` // RECONNECT_BASE_INTERVAL_MS
	MaxReconnectAttempts   int           `mapstructure:"MAX_RECONNECT_ATTEMPTS"`
	ManualReconnectDelay   time.Duration `mapstructure:"-"` // MANUAL_RECONNECT_DELAY_MS
	OutboxSize             int           `mapstructure:"OUTBOX_SIZE"`
	NotificationBufferSize int           `mapstructure:"NOTIFICATION_BUFFER_SIZE"`

	// REST backend
	APIBaseURL        string        `mapstructure:"API_BASE_URL"`
	APITimeout        time.Duration `mapstructure:"-"` // API_TIMEOUT_SECONDS
	NotificationLimit int           `mapstructure:"NOTIFICATION_FETCH_LIMIT"`
	PersistLiveReads  bool          `mapstructure:"PERSIST_LIVE_READS"`

	// Cron Jobs
	PollSchedule string `mapstructure:"POLL_SCHEDULE"`

	// Local storage
	StorageDriver string `mapstructure:"STORAGE_DRIVER"` // sqlite, postgres or redis
	SQLitePath    string `mapstructure:"SQLITE_PATH"`
	DBHost        string `mapstructure:"DB_HOST"`
	DBPort        string `mapstructure:"DB_PORT"`
	DBUser        string `mapstructure:"DB_USER"`
	DBPassword    string `mapstructure:"DB_PASSWORD"`
	DBName        string `mapstructure:"DB_NAME"`
	DBSSLMode     string `mapstructure:"DB_SSL_MODE"`
	DBTimezone    string `mapstructure:"DB_TIMEZONE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	// Firebase Configuration (platform notifications). Optional.
	FirebaseServiceAccountKeyPath string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_KEY_PATH"`
	FirebaseProjectID             string `mapstructure:"FIREBASE_PROJECT_ID"`
	FCMDeviceToken                string `mapstructure:"FCM_DEVICE_TOKEN"`

	// Elasticsearch Configuration (notification archive). Optional.
	ElasticsearchURL string `mapstructure:"ELASTICSEARCH_URL"`
}

// Load attempts to load configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("SERVER_HOST", "127.0.0.1")
	v.SetDefault("SERVER_PORT", "8090")
	v.SetDefault("SERVER_TIMEOUT_SECONDS", 30)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("WS_URL", "ws://localhost:5000/ws")
	v.SetDefault("WS_HANDSHAKE_TIMEOUT_SECONDS", 10)
	v.SetDefault("HEARTBEAT_INTERVAL_SECONDS", 30)
	v.SetDefault("HEARTBEAT_TIMEOUT_SECONDS", 10)
	v.SetDefault("RECONNECT_BASE_INTERVAL_MS", 5000)
	v.SetDefault("MAX_RECONNECT_ATTEMPTS", 5)
	v.SetDefault("MANUAL_RECONNECT_DELAY_MS", 1000)
	v.SetDefault("OUTBOX_SIZE", 0)
	v.SetDefault("NOTIFICATION_BUFFER_SIZE", 50)

	v.SetDefault("API_BASE_URL", "http://localhost:5000/api")
	v.SetDefault("API_TIMEOUT_SECONDS", 15)
	v.SetDefault("NOTIFICATION_FETCH_LIMIT", 50)
	v.SetDefault("PERSIST_LIVE_READS", false)

	v.SetDefault("POLL_SCHEDULE", "@every 30s")

	v.SetDefault("STORAGE_DRIVER", "sqlite")
	v.SetDefault("SQLITE_PATH", "notifier.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "futsal_notifier")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "futsal:local:")

	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_KEY_PATH", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FCM_DEVICE_TOKEN", "")

	v.SetDefault("ELASTICSEARCH_URL", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Convert duration fields
	cfg.ServerTimeout = time.Duration(v.GetInt("SERVER_TIMEOUT_SECONDS")) * time.Second
	cfg.WSHandshakeTimeout = time.Duration(v.GetInt("WS_HANDSHAKE_TIMEOUT_SECONDS")) * time.Second
	cfg.HeartbeatInterval = time.Duration(v.GetInt("HEARTBEAT_INTERVAL_SECONDS")) * time.Second
	cfg.HeartbeatTimeout = time.Duration(v.GetInt("HEARTBEAT_TIMEOUT_SECONDS")) * time.Second
	cfg.ReconnectBaseInterval = time.Duration(v.GetInt("RECONNECT_BASE_INTERVAL_MS")) * time.Millisecond
	cfg.ManualReconnectDelay = time.Duration(v.GetInt("MANUAL_RECONNECT_DELAY_MS")) * time.Millisecond
	cfg.APITimeout = time.Duration(v.GetInt("API_TIMEOUT_SECONDS")) * time.Second

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.WSURL) == "" {
		return fmt.Errorf("WS_URL is not set")
	}
	if !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		return fmt.Errorf("WS_URL must use the ws:// or wss:// scheme, got %q", c.WSURL)
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("API_BASE_URL is not set")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	if c.NotificationBufferSize <= 0 {
		return fmt.Errorf("NOTIFICATION_BUFFER_SIZE must be positive")
	}
	switch c.StorageDriver {
	case "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be one of sqlite, postgres, redis; got %q", c.StorageDriver)
	}
	// Firebase is optional, but a configured key path must exist.
	if c.FirebaseServiceAccountKeyPath != "" {
		if _, err := os.Stat(c.FirebaseServiceAccountKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("firebase service account key file specified in FIREBASE_SERVICE_ACCOUNT_KEY_PATH (%s) not found", c.FirebaseServiceAccountKeyPath)
		}
	}
	return nil
}

// UsesSQLStorage reports whether local storage lives in a GORM database.
func (c *Config) UsesSQLStorage() bool {
	return c.StorageDriver == "sqlite" || c.StorageDriver == "postgres"
}

// PostgresDSN builds the GORM DSN from the individual DB_* parameters.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode, c.DBTimezone)
}
