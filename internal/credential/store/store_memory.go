package store

import (
	"context"
	"sort"
	"sync"

	"baseid/internal/credential/models"
	"baseid/pkg/platform/sentinel"
)

// InMemory keeps credential records keyed by credential ID.
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
	if _, exists := s.records[record.ID()]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.records[record.ID()] = record.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// Execute validates and mutates a record under the write lock.
func (s *InMemory) Execute(_ context.Context, id string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := r.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.records[id] = working
	return working.Clone(), nil
}

func (s *InMemory) ListBySubject(_ context.Context, subject string) ([]*models.Record, error) {
	return s.filter(func(r *models.Record) bool { return r.Subject() == subject }), nil
}

func (s *InMemory) ListByIssuer(_ context.Context, issuer string) ([]*models.Record, error) {
	return s.filter(func(r *models.Record) bool { return r.Issuer() == issuer }), nil
}

// filter returns matching records, newest issuance first.
func (s *InMemory) filter(match func(*models.Record) bool) []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0)
	for _, r := range s.records {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Credential.IssuanceDate.After(out[j].Credential.IssuanceDate)
	})
	return out
}
