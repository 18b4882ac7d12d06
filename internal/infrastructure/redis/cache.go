package redisinfra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gradpath-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

// counters is the subset of the metrics collector the cache reports to.
type counters interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheError()
}

// AuthCache is a best-effort, TTL-bounded cache of per-account active
// state, consulted on every authenticated request before falling
// through to the users table.
//
// Every failure mode — connection error, missing key, corrupt payload —
// degrades to a miss. Callers must behave identically whether the
// cache is present, empty, or entirely unavailable; the only effect of
// a broken cache is extra store reads. A stale "active" snapshot can
// survive up to the TTL after deactivation unless Invalidate is
// called; that staleness bound is part of the contract.
type AuthCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	metrics counters
}

func NewAuthCache(rdb *redis.Client, ttl time.Duration, metrics counters) *AuthCache {
	return &AuthCache{rdb: rdb, ttl: ttl, metrics: metrics}
}

// NewClient creates a Redis client for the given address.
func NewClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

func key(userID string) string { return "auth:" + userID }

// Get returns the cached snapshot and true on a hit. Any error is
// swallowed, logged and reported as a miss.
func (c *AuthCache) Get(ctx context.Context, userID string) (*domain.AccountSnapshot, bool) {
	raw, err := c.rdb.Get(ctx, key(userID)).Bytes()
	if err == redis.Nil {
		c.metrics.RecordCacheMiss()
		return nil, false
	}
	if err != nil {
		slog.Warn("auth cache get failed", "user_id", userID, "err", err)
		c.metrics.RecordCacheError()
		return nil, false
	}
	var snap domain.AccountSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		slog.Warn("auth cache payload corrupt, dropping", "user_id", userID, "err", err)
		c.metrics.RecordCacheError()
		// Best effort: remove the bad entry so it doesn't keep failing.
		_ = c.rdb.Del(ctx, key(userID)).Err()
		return nil, false
	}
	c.metrics.RecordCacheHit()
	return &snap, true
}

// Set stores the snapshot under the configured TTL. Failures are
// swallowed and logged.
func (c *AuthCache) Set(ctx context.Context, userID string, snap *domain.AccountSnapshot) {
	if c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		slog.Warn("auth cache marshal failed", "user_id", userID, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, key(userID), raw, c.ttl).Err(); err != nil {
		slog.Warn("auth cache set failed", "user_id", userID, "err", err)
		c.metrics.RecordCacheError()
	}
}

// Invalidate drops the snapshot. Every mutation that changes an
// account's active or identity state must call this; otherwise stale
// reads persist until TTL expiry.
func (c *AuthCache) Invalidate(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, key(userID)).Err(); err != nil {
		slog.Warn("auth cache invalidate failed", "user_id", userID, "err", err)
		c.metrics.RecordCacheError()
	}
}
