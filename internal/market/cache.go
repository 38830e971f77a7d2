package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SeriesCache caches materialized bar series in Redis, keyed by symbol,
// timeframe and window. Replays over the same history hit the cache
// instead of re-reading the upstream supplier.
type SeriesCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSeriesCache connects a series cache to the Redis instance at addr.
func NewSeriesCache(addr string, db int, ttl time.Duration) *SeriesCache {
	return &SeriesCache{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ttl:    ttl,
	}
}

// NewSeriesCacheWithClient wraps an existing Redis client.
func NewSeriesCacheWithClient(client *redis.Client, ttl time.Duration) *SeriesCache {
	return &SeriesCache{client: client, ttl: ttl}
}

func cacheKey(symbol string, tf Timeframe, from, to time.Time) string {
	return fmt.Sprintf("bars:%s:%s:%d:%d", symbol, tf, from.Unix(), to.Unix())
}

// Get returns the cached series for the window, or (nil, nil) on a miss.
func (c *SeriesCache) Get(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) (*Series, error) {
	raw, err := c.client.Get(ctx, cacheKey(symbol, tf, from, to)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var bars []Bar
	if err := json.Unmarshal([]byte(raw), &bars); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return NewSeries(symbol, tf, bars)
}

// Put stores a series for the window.
func (c *SeriesCache) Put(ctx context.Context, s *Series, from, to time.Time) error {
	raw, err := json.Marshal(s.Bars())
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	key := cacheKey(s.Symbol(), s.Timeframe(), from, to)
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// CachedSupplier decorates a Supplier with a read-through SeriesCache.
type CachedSupplier struct {
	symbol string
	src    Supplier
	cache  *SeriesCache
}

// NewCachedSupplier wraps src with cache for one symbol.
func NewCachedSupplier(symbol string, src Supplier, cache *SeriesCache) *CachedSupplier {
	return &CachedSupplier{symbol: symbol, src: src, cache: cache}
}

// Get serves from the cache when possible and falls through to the
// source supplier otherwise. Cache write failures are logged, not
// fatal: the series from the source is still returned.
func (c *CachedSupplier) Get(ctx context.Context, tf Timeframe, from, to time.Time) (*Series, error) {
	cached, err := c.cache.Get(ctx, c.symbol, tf, from, to)
	if err != nil {
		log.Warn().Err(err).Str("symbol", c.symbol).Str("timeframe", string(tf)).Msg("Series cache read failed")
	}
	if cached != nil {
		return cached, nil
	}
	s, err := c.src.Get(ctx, tf, from, to)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, s, from, to); err != nil {
		log.Warn().Err(err).Str("symbol", c.symbol).Str("timeframe", string(tf)).Msg("Series cache write failed")
	}
	return s, nil
}
