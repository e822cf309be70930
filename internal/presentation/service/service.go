// Package service verifies holder presentations: the holder's proof, the
// verifier's challenge and domain, subject binding, and every embedded
// credential.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	credmodels "baseid/internal/credential/models"
	didmodels "baseid/internal/did/models"
	presmetrics "baseid/internal/presentation/metrics"
	"baseid/internal/presentation/models"
	"baseid/internal/privacy/disclosure"
	privacymodels "baseid/internal/privacy/models"
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/requestcontext"
)

const (
	defaultMaxProofAge = 5 * time.Minute
	maxClockSkew       = time.Minute
	// MaxCredentials bounds the credentials embedded in one presentation.
	MaxCredentials = 32

	credentialWorkers = 4
)

type CredentialVerifier interface {
	Verify(ctx context.Context, vc *credmodels.VerifiableCredential) (*credmodels.VerificationResult, error)
}

type DIDResolver interface {
	RequireActive(ctx context.Context, did string) (*didmodels.Record, error)
}

// PrivacySettings looks up the holder's privacy preferences.
type PrivacySettings interface {
	Lookup(ctx context.Context, did string) (*privacymodels.Settings, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

var tracer = otel.Tracer("baseid/presentation")

type Config struct {
	// MaxProofAge bounds how long after its creation a holder proof is
	// accepted. Defaults to five minutes.
	MaxProofAge time.Duration
}

type Service struct {
	Config

	credentials CredentialVerifier
	dids        DIDResolver
	privacy     PrivacySettings
	logger      *slog.Logger
	audit       AuditPublisher
	metrics     *presmetrics.Metrics
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

func WithMetrics(m *presmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPrivacySettings enforces holders' RequireSelectiveDisclosure setting.
func WithPrivacySettings(p PrivacySettings) Option {
	return func(s *Service) {
		s.privacy = p
	}
}

func New(credentials CredentialVerifier, dids DIDResolver, cfg Config, opts ...Option) *Service {
	if cfg.MaxProofAge <= 0 {
		cfg.MaxProofAge = defaultMaxProofAge
	}
	s := &Service{Config: cfg, credentials: credentials, dids: dids, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify checks vp against the verifier's expected challenge and domain. An
// empty domain accepts any. Failed checks are reported in the result; an
// error means a dependency could not be reached.
func (s *Service) Verify(ctx context.Context, vp *models.VerifiablePresentation, challenge, domain string) (*models.Result, error) {
	ctx, span := tracer.Start(ctx, "presentation.Verify")
	defer span.End()
	start := time.Now()

	result := models.NewResult(vp.Holder)
	span.SetAttributes(
		attribute.String("holder", vp.Holder),
		attribute.Int("credentials", len(vp.VerifiableCredential)),
	)

	if !vp.HasType(models.TypeVerifiablePresentation) {
		result.Fail(models.CheckHolderSignature, "presentation type must include VerifiablePresentation")
		return s.finish(ctx, vp, result, start), nil
	}
	if !didkey.IsValid(vp.Holder) {
		result.Fail(models.CheckHolderSignature, "holder must be a did:base identifier")
		return s.finish(ctx, vp, result, start), nil
	}
	if vp.Proof == nil {
		result.Fail(models.CheckHolderSignature, "presentation has no proof")
		return s.finish(ctx, vp, result, start), nil
	}

	s.checkBinding(ctx, vp, challenge, domain, result)
	if err := s.checkHolderSignature(ctx, vp, result); err != nil {
		return nil, err
	}
	s.checkSubjects(vp, result)

	if err := s.checkSelectiveDisclosure(ctx, vp, result); err != nil {
		return nil, err
	}
	if err := s.verifyCredentials(ctx, vp, result); err != nil {
		return nil, err
	}
	return s.finish(ctx, vp, result, start), nil
}

func (s *Service) checkBinding(ctx context.Context, vp *models.VerifiablePresentation, challenge, domain string, result *models.Result) {
	proof := vp.Proof
	switch {
	case proof.Challenge == "":
		result.Fail(models.CheckChallenge, "presentation proof has no challenge")
	case challenge != "" && proof.Challenge != challenge:
		result.Fail(models.CheckChallenge, "presentation challenge does not match")
	default:
		result.Pass(models.CheckChallenge)
	}

	if domain != "" && proof.Domain != domain {
		result.Fail(models.CheckDomain, "presentation domain does not match")
	} else {
		result.Pass(models.CheckDomain)
	}

	now := requestcontext.Now(ctx)
	switch {
	case proof.Created.After(now.Add(maxClockSkew)):
		result.Fail(models.CheckChallenge, "presentation proof is created in the future")
	case now.Sub(proof.Created) > s.MaxProofAge:
		result.Fail(models.CheckChallenge, "presentation proof has expired")
	}
}

// checkHolderSignature recovers the signer and requires it to be an
// authentication key of the holder's active DID document.
func (s *Service) checkHolderSignature(ctx context.Context, vp *models.VerifiablePresentation, result *models.Result) error {
	if vp.Proof.ProofPurpose != models.ProofPurposeAuthentication {
		result.Fail(models.CheckHolderSignature, "presentation proof purpose must be authentication")
		return nil
	}
	record, err := s.dids.RequireActive(ctx, vp.Holder)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeNotFound, dErrors.CodeBadRequest, dErrors.CodeConflict:
			result.Fail(models.CheckHolderSignature, fmt.Sprintf("holder: %s", err.Error()))
			return nil
		default:
			return credentialErr(dErrors.Wrap(err, dErrors.CodeUnavailable, "presentation verification unavailable"))
		}
	}
	digest, err := vp.SigningDigest()
	if err != nil {
		result.Fail(models.CheckHolderSignature, err.Error())
		return nil
	}
	addr, err := didkey.RecoverHex(digest, vp.Proof.ProofValue)
	if err != nil || !record.Document.ControlsAddress(addr) {
		result.Fail(models.CheckHolderSignature, "presentation was not signed by the holder")
		return nil
	}
	result.Pass(models.CheckHolderSignature)
	return nil
}

func (s *Service) checkSubjects(vp *models.VerifiablePresentation, result *models.Result) {
	switch n := len(vp.VerifiableCredential); {
	case n == 0:
		result.Fail(models.CheckCredentials, "presentation carries no credentials")
		return
	case n > MaxCredentials:
		result.Fail(models.CheckCredentials, fmt.Sprintf("presentation carries more than %d credentials", MaxCredentials))
		return
	}
	for _, vc := range vp.VerifiableCredential {
		if vc == nil || vc.CredentialSubject.ID != vp.Holder {
			result.Fail(models.CheckSubjectBinding, "credential subject is not the presentation holder")
			return
		}
	}
	result.Pass(models.CheckSubjectBinding)
}

// checkSelectiveDisclosure recomputes the digests of every disclosed claim
// and, when the holder requires it, rejects credentials without commitments.
func (s *Service) checkSelectiveDisclosure(ctx context.Context, vp *models.VerifiablePresentation, result *models.Result) error {
	required := false
	if s.privacy != nil {
		settings, err := s.privacy.Lookup(ctx, vp.Holder)
		if err != nil {
			return credentialErr(dErrors.Wrap(err, dErrors.CodeUnavailable, "presentation verification unavailable"))
		}
		required = settings.RequireSelectiveDisclosure
	}
	for _, vc := range vp.VerifiableCredential {
		if vc == nil {
			continue
		}
		committed := vc.Proof != nil && len(vc.Proof.DisclosureDigests) > 0
		if !committed {
			if required {
				result.Fail(models.CheckSelectiveDisclosure, fmt.Sprintf("credential %s is not selectively disclosable", vc.ID))
			}
			continue
		}
		if err := disclosure.Verify(vc); err != nil {
			result.Fail(models.CheckSelectiveDisclosure, fmt.Sprintf("credential %s: %s", vc.ID, err.Error()))
		}
	}
	result.Pass(models.CheckSelectiveDisclosure)
	return nil
}

// verifyCredentials runs every embedded credential through the credential
// verifier. Results keep the presentation's order.
func (s *Service) verifyCredentials(ctx context.Context, vp *models.VerifiablePresentation, result *models.Result) error {
	if _, failed := result.Checks[models.CheckCredentials]; failed {
		return nil
	}
	results := make([]*credmodels.VerificationResult, len(vp.VerifiableCredential))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(credentialWorkers)
	for i, vc := range vp.VerifiableCredential {
		if vc == nil {
			continue
		}
		g.Go(func() error {
			r, err := s.credentials.Verify(gctx, vc)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, r := range results {
		if r == nil {
			continue
		}
		result.Credentials = append(result.Credentials, r)
		if !r.Valid {
			result.Fail(models.CheckCredentials, fmt.Sprintf("credential %s failed verification", vp.VerifiableCredential[i].ID))
		}
	}
	result.Pass(models.CheckCredentials)
	return nil
}

func (s *Service) finish(ctx context.Context, vp *models.VerifiablePresentation, result *models.Result, start time.Time) *models.Result {
	result.Finalize()
	if s.metrics != nil {
		s.metrics.ObserveVerification(result.Valid, len(vp.VerifiableCredential), start)
	}
	reason := "valid"
	if !result.Valid {
		reason = "invalid"
	}
	if s.audit != nil {
		if err := s.audit.Emit(ctx, audit.Event{
			DID:      vp.Holder,
			Subject:  vp.ID,
			Action:   string(audit.EventPresentationVerified),
			Reason:   reason,
			ActorDID: requestcontext.DID(ctx),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event",
				"action", string(audit.EventPresentationVerified),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	return result
}

func credentialErr(err *dErrors.Error) *dErrors.Error {
	return err.In(dErrors.KindCredential)
}
