package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUPPORT_API_KEY", "k-123")
	t.Setenv("SUPPORT_API_BASE_URL", "https://support.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://support.example.com", cfg.API.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Sync.TypingTimeout())
	assert.Equal(t, "support", cfg.Push.Namespace)
	assert.Equal(t, OutboxBackendMemory, cfg.Outbox.Backend)
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SUPPORT_API_KEY", "k-123")
	t.Setenv("SUPPORT_TYPING_TIMEOUT_SECONDS", "45")
	t.Setenv("SUPPORT_OUTBOX_BASE_BACKOFF_SECONDS", "5")
	t.Setenv("SUPPORT_REQUEST_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Sync.TypingTimeout())
	assert.Equal(t, 5*time.Second, cfg.Outbox.BaseBackoff())
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			API:     APIConfig{BaseURL: "http://localhost", APIKey: "k"},
			Session: SessionConfig{Store: SessionStoreMemory},
			Outbox:  OutboxConfig{Backend: OutboxBackendMemory},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing key", mutate: func(c *Config) { c.API.APIKey = "" }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.Session.Store = "etcd" }, wantErr: true},
		{name: "unknown outbox", mutate: func(c *Config) { c.Outbox.Backend = "kafka" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Outbox.Backend = OutboxBackendPostgres }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
