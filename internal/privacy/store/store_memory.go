package store

import (
	"context"
	"sync"

	"baseid/internal/privacy/models"
	"baseid/pkg/platform/sentinel"
)

// InMemory keeps privacy settings keyed by DID.
type InMemory struct {
	mu       sync.RWMutex
	settings map[string]*models.Settings
}

func NewInMemory() *InMemory {
	return &InMemory{settings: make(map[string]*models.Settings)}
}

func (s *InMemory) Find(_ context.Context, did string) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[did]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return settings.Clone(), nil
}

// Save inserts or replaces the settings of settings.DID.
func (s *InMemory) Save(_ context.Context, settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.DID] = settings.Clone()
	return nil
}

// ListDiscoverable returns every DID whose settings opt into the holder
// index.
func (s *InMemory) ListDiscoverable(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for did, settings := range s.settings {
		if settings.Discoverable {
			out = append(out, did)
		}
	}
	return out, nil
}
