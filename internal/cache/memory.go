package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryTTL bounds how long a resolution stays valid in memory.
// Resolutions carry credentials, so they live in process memory only and
// expire quickly enough that key rotation is picked up.
const DefaultMemoryTTL = 5 * time.Minute

// MemoryCache implements Cache with an in-process map.
// Suitable for single-instance deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	rc        *ResolvedCall
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache. A zero ttl uses
// DefaultMemoryTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl == 0 {
		ttl = DefaultMemoryTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

// Get retrieves a resolution, dropping it if expired.
func (c *MemoryCache) Get(ctx context.Context, implID string) (*ResolvedCall, error) {
	c.mu.RLock()
	entry, ok := c.entries[implID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, implID)
		c.mu.Unlock()
		return nil, nil
	}
	return entry.rc, nil
}

// Set stores a resolution with the configured TTL.
func (c *MemoryCache) Set(ctx context.Context, implID string, rc *ResolvedCall) error {
	c.mu.Lock()
	c.entries[implID] = memoryEntry{rc: rc, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Delete drops a resolution.
func (c *MemoryCache) Delete(ctx context.Context, implID string) error {
	c.mu.Lock()
	delete(c.entries, implID)
	c.mu.Unlock()
	return nil
}

// Close is a no-op for the memory cache.
func (c *MemoryCache) Close() error {
	return nil
}
