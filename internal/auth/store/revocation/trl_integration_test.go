//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"baseid/internal/auth/store/revocation"
	"baseid/internal/platform/postgres"
	"baseid/pkg/testutil/containers"
)

type trl interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type TRLSuite struct {
	suite.Suite
	trl trl
}

func TestRedisTRL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	suite.Run(t, &TRLSuite{trl: revocation.NewRedisTRL(rc.Client)})
}

func TestPostgresTRL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.NewPostgresContainer(t)
	if err := postgres.Migrate(context.Background(), pg.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	suite.Run(t, &TRLSuite{trl: revocation.NewPostgresTRL(pg.DB)})
}

func (s *TRLSuite) TestRevokeAndCheck() {
	ctx := context.Background()

	s.Require().NoError(s.trl.RevokeToken(ctx, "jti-revoked", time.Hour))

	revoked, err := s.trl.IsRevoked(ctx, "jti-revoked")
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.trl.IsRevoked(ctx, "jti-unknown")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *TRLSuite) TestExpiredEntriesAreIgnored() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeToken(ctx, "jti-short", time.Second))

	s.Eventually(func() bool {
		revoked, err := s.trl.IsRevoked(ctx, "jti-short")
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *TRLSuite) TestEmptyJTIIsNeverRevoked() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeToken(ctx, "", time.Hour))

	revoked, err := s.trl.IsRevoked(ctx, "")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *TRLSuite) TestNonPositiveTTLRejected() {
	s.Error(s.trl.RevokeToken(context.Background(), "jti-zero", 0))
}
