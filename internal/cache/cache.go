package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"
)

// ErrCacheMiss is returned by a Store that holds no live value for a key.
var ErrCacheMiss = errors.New("cache miss")

// Store is a byte-oriented key/value store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Stats counts lookups since start.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache memoizes computed results in a Store. Concurrent misses for the
// same key each run compute.
type Cache struct {
	store  Store
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		logger: logger.With("component", "cache"),
	}
}

// Key builds the cache key of one extraction mode of a URL.
func Key(url string, compact bool) string {
	return url + "_" + strconv.FormatBool(compact)
}

// GetOrCompute returns the stored value for key, or runs compute, stores its
// result for ttl and returns it. The boolean reports a hit. Errors from
// compute are returned and nothing is stored. Store failures are logged and
// treated as misses.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	value, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		c.hits.Add(1)
		c.logger.Debug("cache hit", "key", key)
		return value, true, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("cache lookup failed", "key", key, "error", err)
	}
	c.misses.Add(1)

	value, err = compute(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("failed to store cache entry", "key", key, "error", err)
	}
	return value, false, nil
}

// Invalidate removes key from the store.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
