// Package service authenticates DID controllers with signed challenges and
// issues session tokens.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	authmetrics "baseid/internal/auth/metrics"
	"baseid/internal/auth/models"
	didmodels "baseid/internal/did/models"
	jwttoken "baseid/internal/jwt_token"
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/platform/sentinel"
	"baseid/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ChallengeStore,TokenRevocationList,DIDResolver

const nonceBytes = 32

type ChallengeStore interface {
	Save(ctx context.Context, c models.Challenge) error
	Consume(ctx context.Context, did, nonce string, now time.Time) (models.Challenge, error)
}

type TokenRevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type TokenIssuer interface {
	GenerateAccessToken(did string, now time.Time, expiresIn time.Duration) (jwttoken.AccessToken, error)
}

// DIDResolver returns the stored record of an active DID.
type DIDResolver interface {
	RequireActive(ctx context.Context, did string) (*didmodels.Record, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TRLFailureMode decides what Logout does when the revocation list is down.
type TRLFailureMode string

const (
	// TRLFailureModeWarn logs and reports success; the token lives until expiry.
	TRLFailureModeWarn TRLFailureMode = "warn"
	// TRLFailureModeFail surfaces the failure to the caller.
	TRLFailureModeFail TRLFailureMode = "fail"
)

type Config struct {
	ChallengeTTL   time.Duration
	TokenTTL       time.Duration
	TRLFailureMode TRLFailureMode
}

var tracer = otel.Tracer("baseid/auth")

type Service struct {
	challenges ChallengeStore
	trl        TokenRevocationList
	tokens     TokenIssuer
	dids       DIDResolver
	logger     *slog.Logger
	audit      AuditPublisher
	metrics    *authmetrics.Metrics
	Config
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *authmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(challenges ChallengeStore, trl TokenRevocationList, tokens TokenIssuer, dids DIDResolver, cfg Config, opts ...Option) (*Service, error) {
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	if cfg.ChallengeTTL <= 0 || cfg.ChallengeTTL > cfg.TokenTTL {
		return nil, errors.New("challenge ttl must be positive and not exceed token ttl")
	}
	if cfg.TRLFailureMode == "" {
		cfg.TRLFailureMode = TRLFailureModeWarn
	}
	s := &Service{
		challenges: challenges,
		trl:        trl,
		tokens:     tokens,
		dids:       dids,
		logger:     slog.Default(),
		Config:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Challenge issues a single-use nonce for an active DID.
func (s *Service) Challenge(ctx context.Context, did string) (*models.Challenge, error) {
	ctx, span := tracer.Start(ctx, "auth.Challenge")
	defer span.End()
	span.SetAttributes(attribute.String("did", did))

	if !didkey.IsValid(did) {
		return nil, authErr(dErrors.New(dErrors.CodeBadRequest, "invalid did:base identifier"))
	}
	if _, err := s.dids.RequireActive(ctx, did); err != nil {
		return nil, translateDIDErr(err)
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, authErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate nonce"))
	}
	now := requestcontext.Now(ctx)
	c := models.Challenge{DID: did, Nonce: nonce, CreatedAt: now, ExpiresAt: now.Add(s.ChallengeTTL)}
	if err := s.challenges.Save(ctx, c); err != nil {
		return nil, authErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to store challenge"))
	}

	s.emit(ctx, audit.EventChallengeIssued, did, "")
	if s.metrics != nil {
		s.metrics.IncrementChallenges()
	}
	return &c, nil
}

// Authenticate consumes the challenge, checks the signature against the
// DID's authentication keys and issues a session token. The challenge is
// spent even when the signature is wrong.
func (s *Service) Authenticate(ctx context.Context, did, nonce, signature string) (*models.AuthenticationResult, error) {
	ctx, span := tracer.Start(ctx, "auth.Authenticate")
	defer span.End()
	span.SetAttributes(attribute.String("did", did))

	if !didkey.IsValid(did) || nonce == "" || signature == "" {
		return nil, authErr(dErrors.New(dErrors.CodeBadRequest, "did, nonce and signature are required"))
	}

	now := requestcontext.Now(ctx)
	if _, err := s.challenges.Consume(ctx, did, nonce, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, s.fail(ctx, did, "unknown_challenge", dErrors.New(dErrors.CodeUnauthorized, "unknown or already used challenge"))
		case errors.Is(err, sentinel.ErrExpired):
			return nil, s.fail(ctx, did, "challenge_expired", dErrors.New(dErrors.CodeExpired, "challenge expired"))
		default:
			return nil, authErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to load challenge"))
		}
	}

	record, err := s.dids.RequireActive(ctx, did)
	if err != nil {
		return nil, translateDIDErr(err)
	}

	signer, err := didkey.RecoverHex(didkey.AuthenticationDigest(did, nonce), signature)
	if err != nil {
		return nil, s.fail(ctx, did, "malformed_signature", dErrors.Wrap(err, dErrors.CodeInvalidSignature, "malformed signature"))
	}
	if !record.Document.ControlsAddress(signer) {
		return nil, s.fail(ctx, did, "signer_mismatch", dErrors.New(dErrors.CodeUnauthorized, "signature does not match an authentication key"))
	}

	token, err := s.tokens.GenerateAccessToken(did, now, s.TokenTTL)
	if err != nil {
		return nil, authErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
	}

	s.emit(ctx, audit.EventAuthSucceeded, did, "")
	if s.metrics != nil {
		s.metrics.IncrementAuthentication(true)
	}
	return &models.AuthenticationResult{
		DID:       did,
		Token:     token.Token,
		TokenType: "Bearer",
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// Logout revokes the token of the current request.
func (s *Service) Logout(ctx context.Context) error {
	did := requestcontext.DID(ctx)
	jti := requestcontext.TokenID(ctx)
	if did == "" || jti == "" {
		return authErr(dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	if err := s.trl.RevokeToken(ctx, jti, s.TokenTTL); err != nil {
		s.logger.ErrorContext(ctx, "failed to add token to revocation list",
			"error", err,
			"jti", jti,
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.TRLFailureMode == TRLFailureModeFail {
			return authErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to add token to revocation list"))
		}
	}
	s.emit(ctx, audit.EventTokenRevoked, did, "logout")
	if s.metrics != nil {
		s.metrics.IncrementLogout()
	}
	return nil
}

// IsTokenRevoked satisfies the auth middleware's revocation check.
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if s.metrics != nil {
		start := time.Now()
		defer func() {
			s.metrics.TokenRevokedLookups.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}()
	}
	return s.trl.IsRevoked(ctx, jti)
}

func (s *Service) fail(ctx context.Context, did, reason string, err *dErrors.Error) error {
	s.logger.WarnContext(ctx, "authentication failed",
		"did", did,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.EventAuthFailed, did, reason)
	if s.metrics != nil {
		s.metrics.IncrementAuthentication(false)
	}
	return authErr(err)
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, did, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, audit.Event{
		DID:      did,
		Subject:  did,
		Action:   string(event),
		Reason:   reason,
		ActorDID: did,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func newNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// translateDIDErr re-tags registry errors as authentication errors.
func translateDIDErr(err error) error {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound:
		return authErr(dErrors.New(dErrors.CodeNotFound, "did not registered"))
	case dErrors.CodeConflict:
		return authErr(dErrors.New(dErrors.CodeForbidden, "did is deactivated"))
	case dErrors.CodeBadRequest:
		return authErr(dErrors.New(dErrors.CodeBadRequest, "invalid did:base identifier"))
	default:
		return authErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve did"))
	}
}

func authErr(err *dErrors.Error) *dErrors.Error {
	return err.In(dErrors.KindAuthentication)
}
