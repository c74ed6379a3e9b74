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
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Service.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "legal_documents", cfg.Qdrant.Collection)
	assert.Equal(t, "multilingual-e5-small", cfg.Embedder.Model)
	assert.Equal(t, 384, cfg.Embedder.Dimensions)
	assert.Equal(t, 512, cfg.Embedder.MaxTokens)
	assert.Equal(t, 2*time.Minute, cfg.Session.Expiry())
	assert.Equal(t, time.Minute, cfg.Session.MigrationInterval())
	assert.Equal(t, 0.2, cfg.Chunking.OverlapRatio)
	assert.Equal(t, 5*time.Second, cfg.Queue.FinalizerDelay)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("SESSION_EXPIRY_MINUTES", "10")
	t.Setenv("QDRANT_COLLECTION", "case_law")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, 10*time.Minute, cfg.Session.Expiry())
	assert.Equal(t, "case_law", cfg.Qdrant.Collection)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
qdrant:
  collection: contracts
session:
  expiry_minutes: 5
`), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "contracts", cfg.Qdrant.Collection)
	assert.Equal(t, 5, cfg.Session.ExpiryMinutes)
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")
	_, err := Load()
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	c := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "saga_chat", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=saga_chat sslmode=disable", c.DSN())
}
