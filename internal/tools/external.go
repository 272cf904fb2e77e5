package tools

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Definition describes an externally discovered tool.
type Definition struct {
	Slug         string         `json:"slug"`
	Description  string         `json:"description"`
	Capabilities []string       `json:"capabilities"`
	Schema       map[string]any `json:"schema"`
}

// Discoverer fetches tool definitions from an external source.
type Discoverer interface {
	Discover(ctx context.Context) ([]Definition, error)
}

// NopDiscoverer discovers nothing. Used when no external source is configured.
type NopDiscoverer struct{}

func (NopDiscoverer) Discover(ctx context.Context) ([]Definition, error) { return nil, nil }

// ExternalCache holds externally discovered tool definitions with a TTL.
type ExternalCache struct {
	mu         sync.Mutex
	discoverer Discoverer
	ttl        time.Duration
	defs       []Definition
	fetchedAt  time.Time
	now        func() time.Time
}

// NewExternalCache creates a TTL-bounded external tool cache.
func NewExternalCache(d Discoverer, ttl time.Duration) *ExternalCache {
	if d == nil {
		d = NopDiscoverer{}
	}
	return &ExternalCache{discoverer: d, ttl: ttl, now: time.Now}
}

// Stale reports whether the cache is older than its TTL.
func (c *ExternalCache) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale()
}

func (c *ExternalCache) stale() bool {
	return c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) > c.ttl
}

// Refresh re-fetches definitions from the discoverer.
func (c *ExternalCache) Refresh(ctx context.Context) error {
	defs, err := c.discoverer.Discover(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = defs
	c.fetchedAt = c.now()
	return nil
}

// Definitions returns the cached definitions, refreshing first when the
// cache is stale and refresh is requested. Refresh failures keep serving the
// stale data.
func (c *ExternalCache) Definitions(ctx context.Context, refreshIfStale bool) []Definition {
	if refreshIfStale && c.Stale() {
		if err := c.Refresh(ctx); err != nil {
			slog.Warn("External tool refresh failed, serving stale definitions", "error", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Definition(nil), c.defs...)
}
