package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKeyPrefix namespaces resolution entries in Redis.
	DefaultRedisKeyPrefix = "multichat:resolution:"

	// DefaultRedisTTL is the default time-to-live for cached resolutions.
	// Short enough that credential rotation and availability flips
	// propagate across instances without explicit invalidation.
	DefaultRedisTTL = 5 * time.Minute
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// KeyPrefix namespaces cache entries (defaults to "multichat:resolution:")
	KeyPrefix string

	// TTL is the time-to-live for cached resolutions (defaults to 5 minutes)
	TTL time.Duration
}

// RedisCache implements Cache using Redis for distributed storage.
// Suitable for multi-instance deployments behind a load balancer.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a new Redis-based cache.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	slog.Info("redis cache connected", "prefix", prefix, "ttl", ttl)

	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Get retrieves a resolution from Redis.
func (c *RedisCache) Get(ctx context.Context, implID string) (*ResolvedCall, error) {
	data, err := c.client.Get(ctx, c.prefix+implID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get resolution from redis: %w", err)
	}

	var rc ResolvedCall
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("failed to parse resolution from redis: %w", err)
	}
	return &rc, nil
}

// Set stores a resolution in Redis.
func (c *RedisCache) Set(ctx context.Context, implID string, rc *ResolvedCall) error {
	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+implID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set resolution in redis: %w", err)
	}
	return nil
}

// Delete drops a resolution from Redis.
func (c *RedisCache) Delete(ctx context.Context, implID string) error {
	if err := c.client.Del(ctx, c.prefix+implID).Err(); err != nil {
		return fmt.Errorf("failed to delete resolution from redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
