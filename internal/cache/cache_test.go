package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisabledCache(t *testing.T) {
	c := New(nil, time.Minute, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	assert.False(t, c.Enabled())

	t.Run("every get is a miss", func(t *testing.T) {
		_, err := c.Get(ctx, "users:1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("writes and invalidation are no-ops", func(t *testing.T) {
		c.Set(ctx, "users:1", []byte(`{"id":1}`))
		c.Delete(ctx, "users:1")
		c.DeletePattern(ctx, "users:*")

		_, err := c.Get(ctx, "users:1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}
