package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("listen_addr: \":9090\"\nsync_interval: 5m\nwebhooks:\n  cloudbeds_token: file-token\n  opera_secret: file-secret\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("CLOUDBEDS_WEBHOOK_TOKEN", "env-token")
	t.Setenv("SYNC_INTERVAL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "env-token", cfg.Webhooks.CloudbedsToken)
	assert.Equal(t, "file-secret", cfg.Webhooks.OperaSecret)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}
