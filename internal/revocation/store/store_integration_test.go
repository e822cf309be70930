//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"baseid/internal/platform/postgres"
	"baseid/internal/revocation"
	"baseid/internal/revocation/store"
	"baseid/pkg/testutil/containers"
)

const issuer = "did:base:970e8128ab834e8eac17ab8e3812f010678cf791"

// BackendSuite runs the same behaviour against every shared backend.
type BackendSuite struct {
	suite.Suite
	store revocation.Store
	reset func()
}

func TestRedisBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	suite.Run(t, &BackendSuite{
		store: store.NewRedis(rc.Client),
		reset: func() { _ = rc.FlushAll(context.Background()) },
	})
}

func TestPostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.NewPostgresContainer(t)
	if err := postgres.Migrate(context.Background(), pg.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	suite.Run(t, &BackendSuite{
		store: store.NewPostgres(pg.DB),
		reset: func() { _ = pg.TruncateTables(context.Background(), "revocation_entries") },
	})
}

func (s *BackendSuite) SetupTest() {
	s.reset()
}

func (s *BackendSuite) TestAddAndContains() {
	ctx := context.Background()
	entry := revocation.Entry(issuer, "urn:uuid:1")

	ok, err := s.store.Contains(ctx, issuer, entry)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Add(ctx, issuer, time.Now().UTC(), entry))
	s.Require().NoError(s.store.Add(ctx, issuer, time.Now().UTC(), entry))

	ok, err = s.store.Contains(ctx, issuer, entry)
	s.Require().NoError(err)
	s.True(ok)

	list, err := s.store.List(ctx, issuer)
	s.Require().NoError(err)
	s.Equal([]string{entry}, list)
}

func (s *BackendSuite) TestBatch() {
	ctx := context.Background()
	entries := []string{
		revocation.Entry(issuer, "urn:uuid:a"),
		revocation.Entry(issuer, "urn:uuid:b"),
		revocation.Entry(issuer, "urn:uuid:c"),
	}
	s.Require().NoError(s.store.Add(ctx, issuer, time.Now().UTC(), entries...))

	list, err := s.store.List(ctx, issuer)
	s.Require().NoError(err)
	s.ElementsMatch(entries, list)
}
