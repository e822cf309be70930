package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"baseid/internal/did/models"
	"baseid/internal/ledger"
	"baseid/pkg/didkey"
	"baseid/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) newRecord(created time.Time) *models.Record {
	kp, err := didkey.Generate()
	s.Require().NoError(err)
	doc, err := models.NewDocument(kp.PublicKey(), created)
	s.Require().NoError(err)
	return models.NewRecord(doc)
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	record := s.newRecord(time.Now())
	s.Require().NoError(s.store.Create(s.ctx, record))

	s.Run("finds by did", func() {
		found, err := s.store.FindByDID(s.ctx, record.DID())
		s.Require().NoError(err)
		s.Equal(record.Document.ID, found.Document.ID)
	})

	s.Run("rejects duplicates", func() {
		s.ErrorIs(s.store.Create(s.ctx, record), sentinel.ErrAlreadyUsed)
	})

	s.Run("unknown did is not found", func() {
		_, err := s.store.FindByDID(s.ctx, "did:base:0000000000000000000000000000000000000000")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned records are copies", func() {
		found, err := s.store.FindByDID(s.ctx, record.DID())
		s.Require().NoError(err)
		found.Document.Authentication[0] = "tampered"

		again, err := s.store.FindByDID(s.ctx, record.DID())
		s.Require().NoError(err)
		s.NotEqual("tampered", again.Document.Authentication[0])
	})
}

func (s *InMemoryStoreSuite) TestExecute() {
	record := s.newRecord(time.Now())
	s.Require().NoError(s.store.Create(s.ctx, record))
	now := time.Now().Add(time.Minute)

	s.Run("validation failure leaves record untouched", func() {
		_, err := s.store.Execute(s.ctx, record.DID(),
			func(r *models.Record) error { return sentinel.ErrInvalidState },
			func(r *models.Record) { r.ApplyDeactivation(now) },
		)
		s.ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByDID(s.ctx, record.DID())
		s.Require().NoError(err)
		s.True(found.IsActive())
	})

	s.Run("applies mutation", func() {
		updated, err := s.store.Execute(s.ctx, record.DID(),
			func(r *models.Record) error { return r.CanDeactivate() },
			func(r *models.Record) { r.ApplyDeactivation(now) },
		)
		s.Require().NoError(err)
		s.False(updated.IsActive())
		s.Equal(2, updated.Document.VersionID)
	})

	s.Run("unknown did", func() {
		_, err := s.store.Execute(s.ctx, "did:base:missing",
			func(*models.Record) error { return nil }, func(*models.Record) {})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestSetAnchorIgnoresStaleVersion() {
	record := s.newRecord(time.Now())
	s.Require().NoError(s.store.Create(s.ctx, record))

	s.Require().NoError(s.store.SetAnchor(s.ctx, record.DID(), 1, ledger.Anchor{Block: 7}))
	s.Require().NoError(s.store.SetAnchor(s.ctx, record.DID(), 99, ledger.Anchor{Block: 8}))

	found, err := s.store.FindByDID(s.ctx, record.DID())
	s.Require().NoError(err)
	s.Require().NotNil(found.Anchor)
	s.Equal(uint64(7), found.Anchor.Block)
	s.ErrorIs(s.store.SetAnchor(s.ctx, "did:base:missing", 1, ledger.Anchor{}), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListActive() {
	base := time.Now()
	first := s.newRecord(base)
	second := s.newRecord(base.Add(time.Second))
	gone := s.newRecord(base.Add(2 * time.Second))
	for _, r := range []*models.Record{second, first, gone} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}
	_, err := s.store.Execute(s.ctx, gone.DID(),
		func(r *models.Record) error { return r.CanDeactivate() },
		func(r *models.Record) { r.ApplyDeactivation(base) })
	s.Require().NoError(err)

	list, err := s.store.ListActive(s.ctx, nil, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.DID(), list[0].DID())
	s.Equal(second.DID(), list[1].DID())

	limited, err := s.store.ListActive(s.ctx, nil, 1)
	s.Require().NoError(err)
	s.Len(limited, 1)

	among, err := s.store.ListActive(s.ctx, []string{second.DID(), gone.DID(), "did:base:missing"}, 0)
	s.Require().NoError(err)
	s.Require().Len(among, 1)
	s.Equal(second.DID(), among[0].DID())

	none, err := s.store.ListActive(s.ctx, []string{}, 0)
	s.Require().NoError(err)
	s.Empty(none)
}
