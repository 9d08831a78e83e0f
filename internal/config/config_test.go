package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mediaforge/sessiond/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "redis", cfg.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout.Std())
	assert.Equal(t, 3, cfg.Session.MaxSessionsPerUser)
	assert.Equal(t, 30*time.Second, cfg.Lock.Lease.Std())
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen: ":9090"
backend: memory
session:
  idle_timeout: 10m
  max_sessions_per_user: 5
lock:
  lease: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout.Std())
	assert.Equal(t, 5, cfg.Session.MaxSessionsPerUser)
	assert.Equal(t, 15*time.Second, cfg.Lock.Lease.Std())

	// Untouched values keep their defaults.
	assert.Equal(t, "mediaforge:", cfg.KeyPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Session.SweepInterval.Std())
}

func TestLoad_BadBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: etcd\n"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  idle_timeout: soon\n"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}
