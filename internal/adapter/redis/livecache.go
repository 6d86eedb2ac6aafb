// Package redis provides the cache in front of the live-stream listing.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/castline/castline/internal/domain"
	"github.com/castline/castline/internal/metrics"
)

// NewClient connects to Redis and verifies connectivity.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	slog.Info("Redis connected")
	return client, nil
}

const liveVersionKey = "livestreams:version"

// LiveListCache caches pages of the live-stream listing. Every cache key
// embeds a version counter that lifecycle transitions bump, so
// invalidation is a single INCR and stale pages simply expire.
type LiveListCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewLiveListCache(client *goredis.Client, ttl time.Duration) *LiveListCache {
	return &LiveListCache{client: client, ttl: ttl}
}

func (c *LiveListCache) key(ctx context.Context, base string) (string, error) {
	version, err := c.client.Get(ctx, liveVersionKey).Int64()
	if err != nil && err != goredis.Nil {
		return "", err
	}
	return fmt.Sprintf("livestreams:v%d:%s", version, base), nil
}

// Get returns the cached page for key, or (nil, false) on miss. Cache
// failures degrade to a miss; the listing falls through to the store.
func (c *LiveListCache) Get(ctx context.Context, base string) (*domain.StreamPage, bool) {
	key, err := c.key(ctx, base)
	if err != nil {
		slog.Warn("Live cache version lookup failed", "error", err)
		return nil, false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		metrics.LiveCacheMisses.Inc()
		return nil, false
	}
	if err != nil {
		slog.Warn("Live cache read failed", "error", err)
		return nil, false
	}

	var page domain.StreamPage
	if err := json.Unmarshal(raw, &page); err != nil {
		slog.Warn("Live cache entry corrupt, ignoring", "key", key, "error", err)
		return nil, false
	}

	metrics.LiveCacheHits.Inc()
	return &page, true
}

func (c *LiveListCache) Set(ctx context.Context, base string, page *domain.StreamPage) {
	key, err := c.key(ctx, base)
	if err != nil {
		return
	}

	raw, err := json.Marshal(page)
	if err != nil {
		slog.Warn("Live cache marshal failed", "error", err)
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("Live cache write failed", "key", key, "error", err)
	}
}

// Invalidate bumps the version so every cached page becomes unreachable.
// Called after each applied lifecycle transition and each soft delete.
func (c *LiveListCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, liveVersionKey).Err(); err != nil {
		return fmt.Errorf("failed to bump live cache version: %w", err)
	}
	metrics.LiveCacheInvalidations.Inc()
	return nil
}
