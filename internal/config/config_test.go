package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:5000/ws", cfg.WSURL)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReconnectBaseInterval)
	assert.Equal(t, time.Second, cfg.ManualReconnectDelay)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 50, cfg.NotificationBufferSize)
	assert.Equal(t, 50, cfg.NotificationLimit)
	assert.Equal(t, "@every 30s", cfg.PollSchedule)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.False(t, cfg.PersistLiveReads)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WS_URL", "wss://futsal.example.com/ws")
	t.Setenv("RECONNECT_BASE_INTERVAL_MS", "250")
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("PERSIST_LIVE_READS", "true")
	t.Setenv("STORAGE_DRIVER", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://futsal.example.com/ws", cfg.WSURL)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectBaseInterval)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.True(t, cfg.PersistLiveReads)
	assert.Equal(t, "redis", cfg.StorageDriver)
}

func TestLoad_DurationOverrides(t *testing.T) {
	t.Setenv("SERVER_TIMEOUT_SECONDS", "5")
	t.Setenv("WS_HANDSHAKE_TIMEOUT_SECONDS", "3")
	t.Setenv("HEARTBEAT_INTERVAL_SECONDS", "12")
	t.Setenv("HEARTBEAT_TIMEOUT_SECONDS", "4")
	t.Setenv("MANUAL_RECONNECT_DELAY_MS", "1500")
	t.Setenv("API_TIMEOUT_SECONDS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ServerTimeout)
	assert.Equal(t, 3*time.Second, cfg.WSHandshakeTimeout)
	assert.Equal(t, 12*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 4*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.ManualReconnectDelay)
	assert.Equal(t, 7*time.Second, cfg.APITimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "http scheme for websocket", key: "WS_URL", val: "http://localhost/ws", want: "ws:// or wss://"},
		{name: "unknown storage driver", key: "STORAGE_DRIVER", val: "mongo", want: "STORAGE_DRIVER"},
		{name: "zero buffer", key: "NOTIFICATION_BUFFER_SIZE", val: "0", want: "NOTIFICATION_BUFFER_SIZE"},
		{name: "missing firebase key file", key: "FIREBASE_SERVICE_ACCOUNT_KEY_PATH", val: "/nonexistent/key.json", want: "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_UsesSQLStorage(t *testing.T) {
	assert.True(t, (&Config{StorageDriver: "sqlite"}).UsesSQLStorage())
	assert.True(t, (&Config{StorageDriver: "postgres"}).UsesSQLStorage())
	assert.False(t, (&Config{StorageDriver: "redis"}).UsesSQLStorage())
}

func TestConfig_PostgresDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "n", DBSSLMode: "disable", DBTimezone: "UTC"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable TimeZone=UTC", cfg.PostgresDSN())
}
