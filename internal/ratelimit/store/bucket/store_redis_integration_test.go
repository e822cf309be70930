//go:build integration

package bucket_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baseid/internal/ratelimit/store/bucket"
	"baseid/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	store := bucket.NewRedis(rc.Client)
	ctx := context.Background()

	t.Run("admits up to the limit", func(t *testing.T) {
		for i := range 3 {
			result, err := store.Allow(ctx, "redis:limit", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed)
			assert.Equal(t, 2-i, result.Remaining)
		}
		result, err := store.Allow(ctx, "redis:limit", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Positive(t, result.RetryAfter)
	})

	t.Run("window expires", func(t *testing.T) {
		result, err := store.Allow(ctx, "redis:expire", 1, 200*time.Millisecond)
		require.NoError(t, err)
		require.True(t, result.Allowed)

		time.Sleep(300 * time.Millisecond)
		result, err = store.Allow(ctx, "redis:expire", 1, 200*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("key expires with its window", func(t *testing.T) {
		_, err := store.Allow(ctx, "redis:ttl", 5, time.Minute)
		require.NoError(t, err)
		ttl, err := rc.Client.PTTL(ctx, "redis:ttl").Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, time.Minute)
		assert.Positive(t, ttl)
	})
}
