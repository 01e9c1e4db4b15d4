package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
	assert.Equal(t, 5, cfg.Poller.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Poller.RetryDelay)
	assert.True(t, cfg.Poller.StopOnComplete)
	assert.Equal(t, 15*time.Second, cfg.Poller.RequestTimeout)
	assert.Empty(t, cfg.Pipeline.StatusURL)
	assert.Equal(t, 24*time.Hour, cfg.Pipeline.RecordTTL)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POLLER_MAX_RETRIES", "3")
	t.Setenv("POLLER_RETRY_DELAY", "500ms")
	t.Setenv("POLLER_STOP_ON_COMPLETE", "false")
	t.Setenv("PIPELINE_STATUS_URL", "https://pipeline.internal")
	t.Setenv("AUTH_MODE", "gateway")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "https://pipeline.internal", cfg.Pipeline.StatusURL)
	assert.Equal(t, "gateway", cfg.Auth.Mode)

	engine := cfg.Poller.EngineConfig()
	assert.Equal(t, 3, engine.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, engine.RetryDelay)
	assert.False(t, engine.StopOnComplete)
}

func TestLoad_SecretFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("s3cr3t\n"), 0o600))
	t.Setenv("PIPELINE_API_TOKEN", "")
	t.Setenv("PIPELINE_API_TOKEN_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.Pipeline.APIToken)
}
