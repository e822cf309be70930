package store

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const entriesKeyPrefix = "baseid:revocation:"

// RedisStore keeps one set per issuer so every registry instance sees the same
// entries. Sets have no expiry: revocation is permanent.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Add is a single SADD; revokedAt is not retained by this backend.
func (s *RedisStore) Add(ctx context.Context, issuer string, _ time.Time, entries ...string) error {
	if len(entries) == 0 {
		return nil
	}
	members := make([]any, 0, len(entries))
	for _, e := range entries {
		members = append(members, e)
	}
	return s.client.SAdd(ctx, entriesKeyPrefix+issuer, members...).Err()
}

func (s *RedisStore) Contains(ctx context.Context, issuer, entry string) (bool, error) {
	return s.client.SIsMember(ctx, entriesKeyPrefix+issuer, entry).Result()
}

func (s *RedisStore) List(ctx context.Context, issuer string) ([]string, error) {
	members, err := s.client.SMembers(ctx, entriesKeyPrefix+issuer).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}
