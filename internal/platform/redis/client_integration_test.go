//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baseid/internal/platform/config"
	"baseid/pkg/testutil/containers"
)

func TestNew(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	t.Run("connects and reports health", func(t *testing.T) {
		c, err := New(ctx, config.RedisConfig{URL: rc.URL, PoolSize: 4, DialTimeout: time.Second})
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		assert.NoError(t, c.Health(ctx))
		assert.Equal(t, 4, c.Options().PoolSize)
	})

	t.Run("unconfigured", func(t *testing.T) {
		c, err := New(ctx, config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := New(ctx, config.RedisConfig{URL: "http://nope"})
		assert.ErrorContains(t, err, "parse redis url")
	})
}
