package challenge

import (
	"context"
	"sync"
	"time"

	"baseid/internal/auth/models"
	"baseid/pkg/platform/sentinel"
)

// InMemory holds outstanding challenges keyed by DID and nonce.
type InMemory struct {
	mu         sync.Mutex
	challenges map[string]models.Challenge
}

func NewInMemory() *InMemory {
	return &InMemory{challenges: make(map[string]models.Challenge)}
}

func (s *InMemory) Save(_ context.Context, c models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[key(c.DID, c.Nonce)] = c
	return nil
}

// Consume removes and returns the challenge. Expired challenges are removed
// and reported as ErrExpired.
func (s *InMemory) Consume(_ context.Context, did, nonce string, now time.Time) (models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(did, nonce)
	c, ok := s.challenges[k]
	if !ok {
		return models.Challenge{}, sentinel.ErrNotFound
	}
	delete(s.challenges, k)
	if c.IsExpired(now) {
		return models.Challenge{}, sentinel.ErrExpired
	}
	return c, nil
}

// DeleteExpired drops challenges that expired before now.
func (s *InMemory) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.challenges {
		if c.IsExpired(now) {
			delete(s.challenges, k)
			n++
		}
	}
	return n, nil
}

func key(did, nonce string) string {
	return did + "|" + nonce
}
