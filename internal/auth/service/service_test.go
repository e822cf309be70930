package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"baseid/internal/auth/service/mocks"
	"baseid/internal/auth/store/challenge"
	didmodels "baseid/internal/did/models"
	jwttoken "baseid/internal/jwt_token"
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/platform/audit/publisher"
	auditmemory "baseid/pkg/platform/audit/store/memory"
	"baseid/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	dids       *mocks.MockDIDResolver
	trl        *mocks.MockTokenRevocationList
	challenges *challenge.InMemory
	jwt        *jwttoken.JWTService
	audit      *auditmemory.InMemoryStore
	service    *Service
	key        *didkey.KeyPair
	record     *didmodels.Record
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.dids = mocks.NewMockDIDResolver(s.ctrl)
	s.trl = mocks.NewMockTokenRevocationList(s.ctrl)
	s.challenges = challenge.NewInMemory()
	s.jwt = jwttoken.NewJWTService("test-key", "baseid", "baseid")
	s.audit = auditmemory.NewInMemoryStore()
	s.now = time.Now().Truncate(time.Second)

	var err error
	s.service, err = New(s.challenges, s.trl, s.jwt, s.dids, Config{
		ChallengeTTL: 5 * time.Minute,
		TokenTTL:     24 * time.Hour,
	},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
	)
	s.Require().NoError(err)

	s.key, err = didkey.Generate()
	s.Require().NoError(err)
	doc, err := didmodels.NewDocument(s.key.PublicKey(), s.now)
	s.Require().NoError(err)
	s.record = didmodels.NewRecord(doc)
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) sign(kp *didkey.KeyPair, nonce string) string {
	sig, err := kp.Sign(didkey.AuthenticationDigest(s.key.DID(), nonce))
	s.Require().NoError(err)
	return sig
}

func (s *ServiceSuite) TestNewRejectsBadConfig() {
	_, err := New(s.challenges, s.trl, s.jwt, s.dids, Config{ChallengeTTL: time.Hour, TokenTTL: time.Minute})
	s.Error(err)
	_, err = New(s.challenges, s.trl, s.jwt, s.dids, Config{ChallengeTTL: time.Minute})
	s.Error(err)
}

func (s *ServiceSuite) TestChallengeResponse() {
	s.dids.EXPECT().RequireActive(gomock.Any(), s.key.DID()).Return(s.record, nil).AnyTimes()

	c, err := s.service.Challenge(s.ctx(), s.key.DID())
	s.Require().NoError(err)
	s.Len(c.Nonce, 64)
	s.Equal(s.now.Add(5*time.Minute), c.ExpiresAt)

	s.Run("valid signature yields a token for the did", func() {
		result, err := s.service.Authenticate(s.ctx(), s.key.DID(), c.Nonce, s.sign(s.key, c.Nonce))
		s.Require().NoError(err)
		s.Equal(s.key.DID(), result.DID)
		s.Equal("Bearer", result.TokenType)
		s.Equal(s.now.Add(24*time.Hour), result.ExpiresAt)

		claims, err := s.jwt.ValidateToken(result.Token)
		s.Require().NoError(err)
		s.Equal(s.key.DID(), claims.DID())
	})

	s.Run("challenge cannot be replayed", func() {
		_, err := s.service.Authenticate(s.ctx(), s.key.DID(), c.Nonce, s.sign(s.key, c.Nonce))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.True(dErrors.HasKind(err, dErrors.KindAuthentication))
	})

	events, err := s.audit.ListByDID(context.Background(), s.key.DID())
	s.Require().NoError(err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, string(audit.EventChallengeIssued))
	s.Contains(actions, string(audit.EventAuthSucceeded))
	s.Contains(actions, string(audit.EventAuthFailed))
}

func (s *ServiceSuite) TestAuthenticateFailures() {
	s.dids.EXPECT().RequireActive(gomock.Any(), s.key.DID()).Return(s.record, nil).AnyTimes()

	s.Run("signature by another key", func() {
		c, err := s.service.Challenge(s.ctx(), s.key.DID())
		s.Require().NoError(err)
		other, err := didkey.Generate()
		s.Require().NoError(err)

		_, err = s.service.Authenticate(s.ctx(), s.key.DID(), c.Nonce, s.sign(other, c.Nonce))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		_, err = s.service.Authenticate(s.ctx(), s.key.DID(), c.Nonce, s.sign(s.key, c.Nonce))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "a failed attempt spends the challenge")
	})

	s.Run("expired challenge", func() {
		c, err := s.service.Challenge(s.ctx(), s.key.DID())
		s.Require().NoError(err)

		late := requestcontext.WithTime(context.Background(), s.now.Add(6*time.Minute))
		_, err = s.service.Authenticate(late, s.key.DID(), c.Nonce, s.sign(s.key, c.Nonce))
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("malformed signature", func() {
		c, err := s.service.Challenge(s.ctx(), s.key.DID())
		s.Require().NoError(err)

		_, err = s.service.Authenticate(s.ctx(), s.key.DID(), c.Nonce, "abcd")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})

	s.Run("missing fields", func() {
		_, err := s.service.Authenticate(s.ctx(), s.key.DID(), "", "sig")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestChallengeRequiresActiveDID() {
	s.Run("unknown did", func() {
		s.dids.EXPECT().RequireActive(gomock.Any(), s.key.DID()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "did not found"))

		_, err := s.service.Challenge(s.ctx(), s.key.DID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.True(dErrors.HasKind(err, dErrors.KindAuthentication))
	})

	s.Run("deactivated did", func() {
		s.dids.EXPECT().RequireActive(gomock.Any(), s.key.DID()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "did is deactivated"))

		_, err := s.service.Challenge(s.ctx(), s.key.DID())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("invalid did", func() {
		_, err := s.service.Challenge(s.ctx(), "did:base:short")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestLogout() {
	authed := requestcontext.WithTokenID(requestcontext.WithDID(s.ctx(), s.key.DID()), "jti-1")

	s.Run("revokes the current token", func() {
		s.trl.EXPECT().RevokeToken(gomock.Any(), "jti-1", 24*time.Hour).Return(nil)
		s.NoError(s.service.Logout(authed))
	})

	s.Run("unauthenticated", func() {
		err := s.service.Logout(s.ctx())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("revocation list outage is tolerated in warn mode", func() {
		s.trl.EXPECT().RevokeToken(gomock.Any(), "jti-1", gomock.Any()).Return(errors.New("redis down"))
		s.NoError(s.service.Logout(authed))
	})

	s.Run("revocation list outage fails in fail mode", func() {
		s.service.TRLFailureMode = TRLFailureModeFail
		defer func() { s.service.TRLFailureMode = TRLFailureModeWarn }()

		s.trl.EXPECT().RevokeToken(gomock.Any(), "jti-1", gomock.Any()).Return(errors.New("redis down"))
		err := s.service.Logout(authed)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("revocation check delegates to the list", func() {
		s.trl.EXPECT().IsRevoked(gomock.Any(), "jti-1").Return(true, nil)
		revoked, err := s.service.IsTokenRevoked(s.ctx(), "jti-1")
		s.Require().NoError(err)
		s.True(revoked)
	})
}
