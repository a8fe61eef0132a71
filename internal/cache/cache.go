package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsar-labs/pulse/internal/store"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache is a read-through cache over the shared store. All failures are
// logged and reported as misses so callers fall back to the database.
type Cache struct {
	store  *store.Store
	ttl    time.Duration
	logger *slog.Logger
}

// New returns a cache backed by the shared store. A nil store yields a
// disabled cache where every Get is a miss and every Set is a no-op.
func New(s *store.Store, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		store:  s,
		ttl:    ttl,
		logger: logger.With("component", "cache"),
	}
}

func (c *Cache) Enabled() bool {
	return c.store != nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.store == nil {
		return nil, ErrCacheMiss
	}

	value, err := c.store.Client().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.logger.Warn("cache degraded",
			"subsystem", "cache",
			"error", err,
			"key", key,
		)
		return nil, ErrCacheMiss
	}

	return value, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	if c.store == nil {
		return
	}

	if err := c.store.Client().Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("cache degraded",
			"subsystem", "cache",
			"error", err,
			"key", key,
		)
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if c.store == nil {
		return
	}

	if err := c.store.Client().Del(ctx, key).Err(); err != nil {
		c.logger.Warn("cache degraded",
			"subsystem", "cache",
			"error", err,
			"key", key,
		)
	}
}

// DeletePattern removes every key matching the glob pattern, e.g. "users:*".
// Invalidation on mutation is pattern-based per kind.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) {
	if c.store == nil {
		return
	}

	client := c.store.Client()
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache degraded",
			"subsystem", "cache",
			"error", err,
			"key", pattern,
		)
		return
	}

	if len(keys) == 0 {
		return
	}

	if err := client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache degraded",
			"subsystem", "cache",
			"error", err,
			"key", pattern,
		)
	}
}
