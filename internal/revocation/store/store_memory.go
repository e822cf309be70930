package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory keeps entries per issuer. Suitable for a single instance.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]map[string]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]map[string]time.Time)}
}

func (s *InMemory) Add(_ context.Context, issuer string, revokedAt time.Time, entries ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.entries[issuer]
	if !ok {
		set = make(map[string]time.Time)
		s.entries[issuer] = set
	}
	for _, e := range entries {
		if _, exists := set[e]; !exists {
			set[e] = revokedAt
		}
	}
	return nil
}

func (s *InMemory) Contains(_ context.Context, issuer, entry string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[issuer][entry]
	return ok, nil
}

// List returns issuer's entries sorted lexically.
func (s *InMemory) List(_ context.Context, issuer string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries[issuer]))
	for e := range s.entries[issuer] {
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}
