// Package cache stores transformer results keyed by content fingerprint.
//
// Lookups go to an in-process LRU first and then to an optional shared
// backend (Redis). Hits from the backend are promoted into the LRU.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Backend is a shared byte store with expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is safe for concurrent use.
type Cache struct {
	local   *lru.Cache[string, []byte]
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates a cache holding up to entries values in process. backend may be nil.
func New(entries int, ttl time.Duration, backend Backend, logger *slog.Logger) (*Cache, error) {
	if entries <= 0 {
		entries = 1024
	}
	local, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("cache: new lru: %w", err)
	}
	return &Cache{local: local, backend: backend, ttl: ttl, logger: logger}, nil
}

// Get returns the cached value. Backend errors count as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.local.Get(key); ok {
		return v, true
	}
	if c.backend == nil {
		return nil, false
	}
	v, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache backend get", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	if ok {
		c.local.Add(key, v)
	}
	return v, ok
}

// Set stores the value in every tier. Backend errors are logged only.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.local.Add(key, value)
	if c.backend == nil {
		return
	}
	if err := c.backend.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("cache backend set", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Len reports the number of entries held in process.
func (c *Cache) Len() int { return c.local.Len() }
