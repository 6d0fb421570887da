package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromYAMLWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
env: test
auth:
  jwt_secret: yaml-secret
metadata:
  backend: mongo
catalog:
  search_delay: 10ms
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "yaml-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, BackendMongo, cfg.Metadata.Backend)
	assert.Equal(t, 8192, cfg.Metadata.MaxBytes)
	assert.Equal(t, 10*time.Millisecond, cfg.Catalog.SearchDelay)
	assert.Equal(t, "8085", cfg.HTTPServer.Port)
	assert.Equal(t, "user_metadata", cfg.MongoDB.Collection)
}

func TestLoadConfig_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("METADATA_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("METADATA_BACKEND", "etcd")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata backend")
}
