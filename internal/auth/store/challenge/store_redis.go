package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"baseid/internal/auth/models"
	"baseid/pkg/platform/sentinel"
)

const challengeKeyPrefix = "baseid:challenge:"

// RedisStore keeps challenges with a TTL matching their expiry. Consume uses
// GETDEL so a nonce is answered at most once across instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, c models.Challenge) error {
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired: %w", sentinel.ErrInvalidState)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	return s.client.Set(ctx, challengeKeyPrefix+key(c.DID, c.Nonce), raw, ttl).Err()
}

func (s *RedisStore) Consume(ctx context.Context, did, nonce string, now time.Time) (models.Challenge, error) {
	raw, err := s.client.GetDel(ctx, challengeKeyPrefix+key(did, nonce)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Challenge{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	var c models.Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return models.Challenge{}, fmt.Errorf("unmarshal challenge: %w", err)
	}
	if c.IsExpired(now) {
		return models.Challenge{}, sentinel.ErrExpired
	}
	return c, nil
}
