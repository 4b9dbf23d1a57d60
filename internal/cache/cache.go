// Package cache provides a cache abstraction for resolved implementation
// call targets. Supports an in-memory backend and Redis for multi-instance
// deployments.
package cache

import (
	"context"
	"time"
)

// ResolvedCall is the cached resolution for one model implementation:
// everything needed to place a provider call without touching the store.
type ResolvedCall struct {
	Endpoint        string         `json:"endpoint"`
	Credential      string         `json:"credential"`
	ProviderName    string         `json:"provider_name"`
	ModelName       string         `json:"model_name"`
	ProviderModelID string         `json:"provider_model_id"`
	WireFamily      string         `json:"wire_family"`
	Defaults        map[string]any `json:"defaults,omitempty"`
	CachedAt        time.Time      `json:"cached_at"`
}

// Cache stores resolutions keyed by implementation id.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a cached resolution.
	// Returns nil, nil on a miss.
	Get(ctx context.Context, implID string) (*ResolvedCall, error)

	// Set stores a resolution.
	Set(ctx context.Context, implID string, rc *ResolvedCall) error

	// Delete drops a cached resolution. Called when providers, keys or
	// implementations change.
	Delete(ctx context.Context, implID string) error

	// Close releases any resources held by the cache.
	Close() error
}
