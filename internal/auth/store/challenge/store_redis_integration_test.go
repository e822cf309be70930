//go:build integration

package challenge_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"baseid/internal/auth/models"
	"baseid/internal/auth/store/challenge"
	"baseid/pkg/platform/sentinel"
	"baseid/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *challenge.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = challenge.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestConsumeOnceUnderConcurrency() {
	ctx := context.Background()
	now := time.Now()
	s.Require().NoError(s.store.Save(ctx, models.Challenge{
		DID: "did:base:a", Nonce: "n1", CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Consume(ctx, "did:base:a", "n1", time.Now()); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *RedisStoreSuite) TestUnknown() {
	_, err := s.store.Consume(context.Background(), "did:base:a", "missing", time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
