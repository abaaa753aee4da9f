package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chesssync/internal/config"
	"chesssync/internal/server/storage"
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

func parseServeFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	opts := &serveOptions{}
	cmd := &cobra.Command{Use: "serve"}
	bindServeFlags(cmd.Flags(), opts)
	require.NoError(t, cmd.ParseFlags(args))
	return loadConfig(cmd, opts)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := parseServeFlags(t)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", cfg.Addr())
	assert.Equal(t, config.BackendMemory, cfg.StorageBackend())
	assert.False(t, cfg.Server.Dev)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHESS_LOG_LEVEL", "warn")
	t.Setenv("CHESS_STORAGE_PATH", "/tmp/from-env.db")

	cfg, err := parseServeFlags(t, "--api-port", "9191", "--dev", "--log-level", "debug")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.True(t, cfg.Server.Dev)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched flags keep the environment value
	assert.Equal(t, "/tmp/from-env.db", cfg.Storage.Path)
	assert.Equal(t, config.BackendSQLite, cfg.StorageBackend())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	clearEnv(t)

	_, err := parseServeFlags(t, "--storage-backend", "redis")
	assert.ErrorContains(t, err, "redis backend requires a URL")

	_, err = parseServeFlags(t, "--pid-lock")
	assert.ErrorContains(t, err, "--pid-lock requires --pid")
}

func TestOpenBackend(t *testing.T) {
	clearEnv(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	b, err := openBackend(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, b.repo)
	assert.Nil(t, b.moveLog)

	cfg.Storage.Path = filepath.Join(t.TempDir(), "chess.db")
	b, err = openBackend(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.repo.Close()
	assert.IsType(t, &storage.Store{}, b.repo)
	assert.NotNil(t, b.moveLog)

	// Schema is in place
	_, err = b.repo.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenSecret(t *testing.T) {
	cfg := config.DefaultConfig()

	random1, err := tokenSecret(cfg, zap.NewNop())
	require.NoError(t, err)
	random2, err := tokenSecret(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, random1, 32)
	assert.NotEqual(t, random1, random2)

	cfg.Server.Dev = true
	dev, err := tokenSecret(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, devTokenSecret, string(dev))

	cfg.Admin.TokenSecret = "configured-secret-with-at-least-32-chars"
	configured, err := tokenSecret(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, cfg.Admin.TokenSecret, string(configured))
}

func TestNewAuthenticatorAcceptsShortPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_CHESS_PASSWORD", "chess")

	cfg, err := parseServeFlags(t)
	require.NoError(t, err)

	auth, err := newAuthenticator(cfg, storage.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, auth.Configured())

	grant, err := auth.Login(context.Background(), "chess")
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
}

func TestConfigWriteCommand(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_CHESS_PASSWORD", "hunter2")
	t.Setenv("ADMIN_TOKEN_SECRET", "env-secret-with-at-least-32-characters")
	t.Setenv("KV_TOKEN", "kv-access-token")
	path := filepath.Join(t.TempDir(), "chess.yaml")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "write", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Configuration written")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, secret := range []string{"hunter2", "env-secret-with-at-least-32-characters", "kv-access-token"} {
		assert.NotContains(t, string(data), secret)
	}

	clearEnv(t)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Admin.Password)
}
