package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Server.MasterKey)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "data/multichat.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 10, cfg.Storage.PostgresMaxConns)
	assert.Equal(t, "multichat", cfg.Storage.MongoDatabase)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 8, cfg.Dispatch.Concurrency)
	assert.Equal(t, 120*time.Second, cfg.Dispatch.CallTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Stream.Delay)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.MetricsEnabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MASTER_KEY", "secret")
	t.Setenv("STORAGE_TYPE", "postgresql")
	t.Setenv("POSTGRES_URL", "postgres://localhost:5432/multichat")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("DISPATCH_CONCURRENCY", "4")
	t.Setenv("CALL_TIMEOUT", "30s")
	t.Setenv("STREAM_DELAY", "0")
	t.Setenv("LOG_FORMAT", "pretty")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.MasterKey)
	assert.Equal(t, "postgresql", cfg.Storage.Type)
	assert.Equal(t, "postgres://localhost:5432/multichat", cfg.Storage.PostgresURL)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis://localhost:6379", cfg.Cache.RedisURL)
	assert.Equal(t, 4, cfg.Dispatch.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.CallTimeout)
	assert.Equal(t, time.Duration(0), cfg.Stream.Delay)
	assert.Equal(t, "pretty", cfg.Log.Format)
	assert.False(t, cfg.MetricsEnabled)
}
