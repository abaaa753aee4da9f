package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ADMIN_CHESS_PASSWORD", "ADMIN_TOKEN_SECRET", "KV_URL", "KV_TOKEN",
		"CHESS_STORAGE_PATH", "CHESS_STORAGE_BACKEND", "CHESS_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, BackendMemory, cfg.StorageBackend())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "chess.yaml")
	data := `
server:
  port: 9000
  dev: true
storage:
  path: /tmp/chess.db
  write_attempts: 5
  write_backoff: 250ms
admin:
  token_ttl: 2h
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Server.Dev)
	assert.Equal(t, "localhost", cfg.Server.Host, "unset fields keep defaults")
	assert.Equal(t, BackendSQLite, cfg.StorageBackend())
	assert.Equal(t, 5, cfg.Storage.WriteAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Storage.WriteBackoff)
	assert.Equal(t, 2*time.Hour, cfg.Admin.TokenTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("admin password and secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ADMIN_CHESS_PASSWORD", "hunter2")
		t.Setenv("ADMIN_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "hunter2", cfg.Admin.Password)
		assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Admin.TokenSecret)
	})

	t.Run("KV_URL selects redis", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("KV_URL", "redis://localhost:6379/0")
		t.Setenv("KV_TOKEN", "secret")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, BackendRedis, cfg.StorageBackend())
		assert.Equal(t, "secret", cfg.Storage.Token)
	})

	t.Run("explicit backend wins over inference", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("KV_URL", "redis://localhost:6379/0")
		t.Setenv("CHESS_STORAGE_BACKEND", "MEMORY")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, BackendMemory, cfg.StorageBackend())
	})

	t.Run("empty values leave file settings", func(t *testing.T) {
		clearEnv(t)

		cfg := DefaultConfig()
		cfg.Storage.Path = "from-file.db"
		cfg.applyEnvOverrides()

		assert.Equal(t, "from-file.db", cfg.Storage.Path)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, true},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = BackendSQLite }, true},
		{"redis without url", func(c *Config) { c.Storage.Backend = BackendRedis }, true},
		{"redis with url", func(c *Config) { c.Storage.URL = "redis://localhost:6379" }, false},
		{"zero attempts", func(c *Config) { c.Storage.WriteAttempts = 0 }, true},
		{"short secret", func(c *Config) { c.Admin.TokenSecret = "short" }, true},
		{"zero cleanup interval", func(c *Config) { c.Admin.CleanupInterval = 0 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
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

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "chess.yaml")
	cfg := DefaultConfig()
	cfg.Server.Port = 8181
	cfg.Storage.WriteBackoff = time.Second

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Admin.Password = "hunter2"
	cfg.Admin.TokenSecret = "0123456789abcdef0123456789abcdef"
	cfg.Storage.Token = "secret"
	cfg.Storage.URL = "redis://localhost:6379/0"

	r := cfg.Redacted()
	assert.Empty(t, r.Admin.Password)
	assert.Empty(t, r.Admin.TokenSecret)
	assert.Empty(t, r.Storage.Token)
	assert.Equal(t, cfg.Storage.URL, r.Storage.URL)

	// The original keeps its secrets
	assert.Equal(t, "hunter2", cfg.Admin.Password)
}
