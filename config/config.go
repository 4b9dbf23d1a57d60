// Package config provides configuration management for the application.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Dispatch DispatchConfig
	Stream   StreamConfig
	Log      LogConfig

	// MetricsEnabled exposes /metrics when true.
	MetricsEnabled bool

	// SeedFile is an optional YAML bootstrap file loaded at startup.
	SeedFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string

	// MasterKey protects the API when set. Empty disables auth.
	MasterKey string
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Type is sqlite, postgresql or mongodb.
	Type string

	SQLitePath       string
	PostgresURL      string
	PostgresMaxConns int
	MongoURL         string
	MongoDatabase    string
}

// CacheConfig configures the resolution cache.
type CacheConfig struct {
	// Backend is memory, redis or none.
	Backend  string
	RedisURL string
	TTL      time.Duration
}

// DispatchConfig tunes parallel dispatch.
type DispatchConfig struct {
	Concurrency int
	CallTimeout time.Duration
}

// StreamConfig tunes the SSE presenter.
type StreamConfig struct {
	// Delay is inserted between streamed response events.
	Delay time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load() //nolint:errcheck

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("STORAGE_TYPE", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/multichat.db")
	v.SetDefault("POSTGRES_MAX_CONNS", 10)
	v.SetDefault("MONGO_DATABASE", "multichat")
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("DISPATCH_CONCURRENCY", 8)
	v.SetDefault("CALL_TIMEOUT", "120s")
	v.SetDefault("STREAM_DELAY", "200ms")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("METRICS_ENABLED", true)

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("PORT"),
			MasterKey: v.GetString("MASTER_KEY"),
		},
		Storage: StorageConfig{
			Type:             v.GetString("STORAGE_TYPE"),
			SQLitePath:       v.GetString("SQLITE_PATH"),
			PostgresURL:      v.GetString("POSTGRES_URL"),
			PostgresMaxConns: v.GetInt("POSTGRES_MAX_CONNS"),
			MongoURL:         v.GetString("MONGO_URL"),
			MongoDatabase:    v.GetString("MONGO_DATABASE"),
		},
		Cache: CacheConfig{
			Backend:  v.GetString("CACHE_BACKEND"),
			RedisURL: v.GetString("REDIS_URL"),
			TTL:      v.GetDuration("CACHE_TTL"),
		},
		Dispatch: DispatchConfig{
			Concurrency: v.GetInt("DISPATCH_CONCURRENCY"),
			CallTimeout: v.GetDuration("CALL_TIMEOUT"),
		},
		Stream: StreamConfig{
			Delay: v.GetDuration("STREAM_DELAY"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
		SeedFile:       v.GetString("SEED_FILE"),
	}

	return cfg, nil
}
