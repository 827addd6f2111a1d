// Package cache implements an optional Redis-backed read-through cache in
// front of the candle source.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zonechain-engine/internal/candles"
	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/market"
)

// ttl is kept well inside one scheduler tick period so a cache hit never
// serves data staler than the tick cadence would have fetched fresh.
const ttl = 30 * time.Second

// FetchFunc is the underlying candle source call to fall back to.
type FetchFunc func(ctx context.Context) ([]market.Candlestick, error)

// Cache wraps an optional Redis client. A nil or unreachable client makes
// every call degrade straight to fetch; caching is strictly an
// optimization here, never a dependency for correctness.
type Cache struct {
	client *redis.Client
}

// New builds a Cache. enabled=false (or a later connection error) makes
// GetOrFetch always call through to fetch.
func New(enabled bool, address, password string, db int) *Cache {
	if !enabled {
		return &Cache{}
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}
}

// GetOrFetch returns the cached candle sequence for (symbol, interval,
// limit) if present and unexpired, otherwise calls fetch and caches its
// result. Any Redis error, including "no client configured", falls
// through to fetch directly.
func (c *Cache) GetOrFetch(ctx context.Context, symbol, interval string, limit int, fetch FetchFunc) ([]market.Candlestick, error) {
	if c.client == nil {
		return fetch(ctx)
	}

	key := cacheKey(symbol, interval, limit)
	log := logging.Default().WithComponent("cache").WithField("key", key)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var candles []market.Candlestick
		if err := json.Unmarshal(raw, &candles); err == nil {
			return candles, nil
		}
		log.Warn("cached value malformed, refetching")
	} else if err != redis.Nil {
		log.WithError(err).Debug("cache read failed, falling back to direct fetch")
	}

	candles, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(candles); err == nil {
		if err := c.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
			log.WithError(err).Debug("cache write failed")
		}
	}
	return candles, nil
}

func cacheKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, interval, limit)
}

// CachedSource adapts a Cache in front of an underlying candles.Source,
// implementing candles.Source itself so the scheduler can use it as a
// drop-in source regardless of whether caching is enabled.
type CachedSource struct {
	cache    *Cache
	upstream candles.Source
}

// NewCachedSource builds a CachedSource over upstream.
func NewCachedSource(cache *Cache, upstream candles.Source) *CachedSource {
	return &CachedSource{cache: cache, upstream: upstream}
}

// Fetch implements candles.Source.
func (s *CachedSource) Fetch(ctx context.Context, symbol, interval string, limit int) ([]market.Candlestick, error) {
	return s.cache.GetOrFetch(ctx, symbol, interval, limit, func(ctx context.Context) ([]market.Candlestick, error) {
		return s.upstream.Fetch(ctx, symbol, interval, limit)
	})
}
