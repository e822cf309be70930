package store

import (
	"context"
	"sort"
	"sync"

	"baseid/internal/did/models"
	"baseid/internal/ledger"
	"baseid/pkg/platform/sentinel"
)

// InMemory stores DID records in a map. Records are cloned on the way in and
// out so callers cannot mutate stored state.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*models.Record)}
}

func (s *InMemory) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.DID()]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.records[record.DID()] = record.Clone()
	return nil
}

func (s *InMemory) FindByDID(_ context.Context, did string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[did]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// Execute validates and mutates a record under the write lock.
func (s *InMemory) Execute(_ context.Context, did string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[did]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := r.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.records[did] = working
	return working.Clone(), nil
}

// SetAnchor records the anchor for a version. Stale versions are ignored.
func (s *InMemory) SetAnchor(_ context.Context, did string, version int, anchor ledger.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[did]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.Document.VersionID == version {
		a := anchor
		r.Anchor = &a
	}
	return nil
}

// ListActive returns active records ordered by creation time. A non-nil
// among restricts the result to those DIDs.
func (s *InMemory) ListActive(_ context.Context, among []string, limit int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0, len(s.records))
	if among != nil {
		for _, did := range among {
			if r, ok := s.records[did]; ok && r.IsActive() {
				out = append(out, r.Clone())
			}
		}
	} else {
		for _, r := range s.records {
			if r.IsActive() {
				out = append(out, r.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
