// Package cache is the read-through, write-invalidate layer for derived
// tenant aggregates. It is never the source of truth: every value is
// rebuildable from the entry store, and a dead backend degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yourorg/timetrack/internal/observability/metrics"
)

// Keys are tenant-scoped strings; invalidation always targets a single
// tenant's derived data.
func ProjectsKey(tenantID string) string { return "projects:" + tenantID }
func StatsKey(tenantID string) string    { return "stats:" + tenantID }

// Store is a cache backend. Implementations are best-effort: a failed Set or
// Delete must not fail the caller's write, but Delete errors are surfaced so
// the write path can decide to log them.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string) error
}

// TenantCache exposes JSON-typed read-through over a Store with a fixed TTL.
type TenantCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a tenant cache. TTL should be minutes, not seconds: staleness
// is bounded by explicit invalidation on every write path, TTL is a backstop.
func New(store Store, ttl time.Duration, logger *slog.Logger) *TenantCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantCache{store: store, ttl: ttl, logger: logger}
}

// GetJSON loads key into dst, reporting whether it was a hit.
func (c *TenantCache) GetJSON(ctx context.Context, key string, dst any) bool {
	data, ok := c.store.Get(ctx, key)
	if !ok {
		metrics.ObserveCache("miss")
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// A corrupt value is expendable; drop it and treat as a miss.
		_ = c.store.Delete(ctx, key)
		metrics.ObserveCache("miss")
		return false
	}
	metrics.ObserveCache("hit")
	return true
}

// SetJSON stores v under key with the configured TTL.
func (c *TenantCache) SetJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	c.store.Set(ctx, key, data, c.ttl)
}

// InvalidateTenant synchronously drops every derived key for the tenant.
// Write paths call this before acknowledging success so a client re-reading
// right after its write can never see pre-write aggregates.
func (c *TenantCache) InvalidateTenant(ctx context.Context, tenantID string) {
	if err := c.store.Delete(ctx, StatsKey(tenantID), ProjectsKey(tenantID)); err != nil {
		c.logger.Warn("cache invalidation failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
	metrics.ObserveCache("invalidate")
}
