package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	credmetrics "baseid/internal/credential/metrics"
	"baseid/internal/credential/models"
	didmodels "baseid/internal/did/models"
	"baseid/internal/ledger"
	"baseid/internal/privacy/disclosure"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/didkey"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/platform/sentinel"
	stringutil "baseid/pkg/platform/strings"
	"baseid/pkg/requestcontext"
)

// maxClockSkew tolerates issuers whose clocks run slightly ahead.
const maxClockSkew = 5 * time.Minute

type Store interface {
	Create(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, id string) (*models.Record, error)
	Execute(ctx context.Context, id string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
	ListBySubject(ctx context.Context, subject string) ([]*models.Record, error)
	ListByIssuer(ctx context.Context, issuer string) ([]*models.Record, error)
}

// DIDResolver returns the authoritative DID record, bypassing caches.
type DIDResolver interface {
	Get(ctx context.Context, did string) (*didmodels.Record, error)
}

type RevocationRegistry interface {
	Revoke(ctx context.Context, issuer, credentialID string) (*ledger.Anchor, error)
	IsRevoked(ctx context.Context, issuer, credentialID string) (bool, error)
}

type Ledger interface {
	Anchor(ctx context.Context, kind ledger.Kind, key string, digest []byte) (ledger.Anchor, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

var tracer = otel.Tracer("baseid/credential")

// Config controls issuance defaults.
type Config struct {
	CredentialTTL time.Duration
	// EnablePrivacy commits claims at issuance so holders can disclose
	// selectively.
	EnablePrivacy bool
	// RegistryURL prefixes the credentialStatus id of issued credentials.
	RegistryURL string
}

// Service is the credential store and verification engine.
type Service struct {
	Config

	store      Store
	dids       DIDResolver
	revocation RevocationRegistry
	ledger     Ledger
	issuer     *didkey.KeyPair
	logger     *slog.Logger
	audit      AuditPublisher
	metrics    *credmetrics.Metrics
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

func WithMetrics(m *credmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIssuerKey enables server-side issuance signed by kp.
func WithIssuerKey(kp *didkey.KeyPair) Option {
	return func(s *Service) {
		s.issuer = kp
	}
}

func New(store Store, dids DIDResolver, revocation RevocationRegistry, l Ledger, cfg Config, opts ...Option) (*Service, error) {
	if cfg.CredentialTTL <= 0 {
		return nil, fmt.Errorf("credential ttl must be positive, got %s", cfg.CredentialTTL)
	}
	cfg.RegistryURL = strings.TrimRight(cfg.RegistryURL, "/")
	s := &Service{
		Config:     cfg,
		store:      store,
		dids:       dids,
		revocation: revocation,
		ledger:     l,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssuerDID is the DID server-side issuance signs as, or empty when
// issuance is disabled.
func (s *Service) IssuerDID() string {
	if s.issuer == nil {
		return ""
	}
	return s.issuer.DID()
}

// IssueRequest describes a credential for the registry issuer to sign.
type IssueRequest struct {
	Subject string
	// Types are appended to VerifiableCredential.
	Types  []string
	Claims models.Claims
	// TTL overrides CredentialTTL when positive.
	TTL time.Duration
}

// Issue signs, anchors and stores a credential from the registry issuer. The
// returned credential carries the disclosure salts, which are not stored.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*models.VerifiableCredential, error) {
	ctx, span := tracer.Start(ctx, "credential.Issue")
	defer span.End()

	if s.issuer == nil {
		return nil, credentialErr(dErrors.New(dErrors.CodeUnavailable, "credential issuance is not configured"))
	}
	if !didkey.IsValid(req.Subject) {
		return nil, credentialErr(dErrors.New(dErrors.CodeBadRequest, "subject must be a did:base identifier"))
	}
	if len(req.Claims) == 0 {
		return nil, credentialErr(dErrors.New(dErrors.CodeValidation, "at least one claim is required"))
	}
	if _, ok := req.Claims["id"]; ok {
		return nil, credentialErr(dErrors.New(dErrors.CodeValidation, "claim name id is reserved"))
	}
	issuerRecord, err := s.dids.Get(ctx, s.issuer.DID())
	if err != nil {
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeUnavailable, "issuer did cannot be resolved"))
	}
	if !issuerRecord.IsActive() {
		return nil, credentialErr(dErrors.New(dErrors.CodeConflict, "issuer did is deactivated"))
	}

	now := requestcontext.Now(ctx).UTC().Truncate(time.Second)
	ttl := s.CredentialTTL
	if req.TTL > 0 {
		ttl = req.TTL
	}
	expires := now.Add(ttl)
	vc := &models.VerifiableCredential{
		Context:           []string{models.ContextCredentialsV1, models.ContextSecp256k1},
		ID:                models.NewID(),
		Type:              stringutil.DedupeAndTrim(append([]string{models.TypeVerifiableCredential}, req.Types...)),
		Issuer:            s.issuer.DID(),
		IssuanceDate:      now,
		ExpirationDate:    &expires,
		CredentialSubject: models.CredentialSubject{ID: req.Subject, Claims: req.Claims},
		CredentialStatus: &models.CredentialStatus{
			ID:   s.RegistryURL + "/revocations/" + s.issuer.DID(),
			Type: models.StatusTypeRevocationRegistry,
		},
	}
	span.SetAttributes(attribute.String("credential_id", vc.ID))

	if s.EnablePrivacy {
		digests, salts, err := disclosure.Commit(req.Claims)
		if err != nil {
			return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit claims"))
		}
		vc.Proof = &models.Proof{DisclosureDigests: digests}
		vc.Disclosures = salts
	}
	if err := vc.Sign(s.issuer, now); err != nil {
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign credential"))
	}

	if err := s.persist(ctx, vc, now); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventCredentialIssued, vc, "")
	if s.metrics != nil {
		s.metrics.IncrementIssued(s.EnablePrivacy)
	}
	return vc, nil
}

// Register stores a credential signed by an external issuer. The caller must
// be authenticated as that issuer and the proof must verify.
func (s *Service) Register(ctx context.Context, vc *models.VerifiableCredential) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "credential.Register")
	defer span.End()

	if err := requireCaller(ctx, vc.Issuer, "only the issuer may register a credential"); err != nil {
		return nil, err
	}
	if err := validateShape(vc); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("credential_id", vc.ID))

	issuerRecord, err := s.dids.Get(ctx, vc.Issuer)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, credentialErr(dErrors.New(dErrors.CodeBadRequest, "issuer did is not registered"))
		}
		return nil, err
	}
	if !issuerRecord.IsActive() {
		return nil, credentialErr(dErrors.New(dErrors.CodeConflict, "issuer did is deactivated"))
	}
	addr, err := recoverSigner(vc)
	if err != nil || !issuerRecord.Document.AssertsAddress(addr) {
		return nil, credentialErr(dErrors.New(dErrors.CodeInvalidSignature, "credential proof does not verify against the issuer document"))
	}
	if len(vc.Disclosures) > 0 {
		if err := disclosure.Verify(vc); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	if err := s.persist(ctx, vc, now); err != nil {
		return nil, err
	}
	record, err := s.store.FindByID(ctx, vc.ID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	s.emit(ctx, audit.EventCredentialRegistered, vc, "")
	if s.metrics != nil {
		s.metrics.IncrementRegistered()
	}
	return record, nil
}

// persist anchors vc and stores it as an active record.
func (s *Service) persist(ctx context.Context, vc *models.VerifiableCredential, now time.Time) error {
	digest, err := vc.SigningDigest()
	if err != nil {
		return credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to digest credential"))
	}
	anchor, err := s.ledger.Anchor(ctx, ledger.KindCredential, vc.ID, digest)
	if err != nil {
		return credentialErr(dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unavailable"))
	}
	record := models.NewRecord(vc, now)
	record.Anchor = &anchor
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return credentialErr(dErrors.New(dErrors.CodeConflict, "credential already registered"))
		}
		return credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential"))
	}
	return nil
}

type outcome struct {
	ok     bool
	reason string
}

func pass() outcome              { return outcome{ok: true} }
func fail(reason string) outcome { return outcome{reason: reason} }

func (o outcome) record(r *models.VerificationResult, check string) {
	if o.ok {
		r.Pass(check)
		return
	}
	r.Fail(check, o.reason)
}

// Verify runs every check on vc and reports them individually. An invalid
// credential is not an error; errors mean a dependency failed and the
// outcome is unknown.
func (s *Service) Verify(ctx context.Context, vc *models.VerifiableCredential) (*models.VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "credential.Verify")
	defer span.End()
	start := time.Now()
	now := requestcontext.Now(ctx)

	result := models.NewVerificationResult()
	if vc.Proof == nil || vc.Proof.ProofValue == "" {
		result.Fail(models.CheckSignature, "credential has no proof")
		return s.finish(ctx, vc, result, start), nil
	}
	if !didkey.IsValid(vc.Issuer) {
		result.Fail(models.CheckIssuer, "issuer is not a did:base identifier")
		return s.finish(ctx, vc, result, start), nil
	}

	if vc.IsExpired(now) {
		result.Fail(models.CheckExpiry, "credential has expired")
		result.Status = models.StatusExpired
	} else {
		result.Pass(models.CheckExpiry)
	}
	switch {
	case vc.IssuanceDate.IsZero():
		result.Fail(models.CheckIssuanceDate, "credential has no issuance date")
	case vc.IssuanceDate.After(now.Add(maxClockSkew)):
		result.Fail(models.CheckIssuanceDate, "credential is issued in the future")
	case vc.ExpirationDate != nil && vc.ExpirationDate.Before(vc.IssuanceDate):
		result.Fail(models.CheckIssuanceDate, "credential expires before it was issued")
	default:
		result.Pass(models.CheckIssuanceDate)
	}
	if len(vc.Proof.DisclosureDigests) > 0 {
		if err := disclosure.Verify(vc); err != nil {
			result.Fail(models.CheckDisclosure, err.Error())
		} else {
			result.Pass(models.CheckDisclosure)
		}
	}

	// Each goroutine writes only its own outcome; they are merged after Wait.
	var (
		signer, issuerOut, revoked, status outcome
		signerAddr                         common.Address
		issuerDoc                          *didmodels.Record
		recordStatus                       models.Status
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr, err := recoverSigner(vc)
		if err != nil {
			signer = fail("credential signature cannot be recovered")
			return nil
		}
		signerAddr = addr
		signer = pass()
		return nil
	})
	g.Go(func() error {
		record, err := s.dids.Get(gctx, vc.Issuer)
		switch {
		case err == nil:
			issuerDoc = record
			if record.IsActive() {
				issuerOut = pass()
			} else {
				issuerOut = fail("issuer did is deactivated")
			}
		case dErrors.HasCode(err, dErrors.CodeNotFound), dErrors.HasCode(err, dErrors.CodeBadRequest):
			issuerOut = fail("issuer did is not registered")
		default:
			return fmt.Errorf("resolve issuer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		isRevoked, err := s.revocation.IsRevoked(gctx, vc.Issuer, vc.ID)
		if err != nil {
			return fmt.Errorf("check revocation registry: %w", err)
		}
		if isRevoked {
			revoked = fail("credential is revoked")
		} else {
			revoked = pass()
		}
		return nil
	})
	g.Go(func() error {
		record, err := s.store.FindByID(gctx, vc.ID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			// Unregistered credentials are judged on their proof alone.
			status = pass()
		case err != nil:
			return fmt.Errorf("load credential record: %w", err)
		case record.Credential.Proof == nil || record.Credential.Proof.ProofValue != vc.Proof.ProofValue:
			status = fail("credential does not match the registered record")
		default:
			recordStatus = record.EffectiveStatus(now)
			switch recordStatus {
			case models.StatusSuspended, models.StatusRevoked:
				status = fail("credential is " + string(recordStatus))
			default:
				status = pass()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeUnavailable, "credential verification unavailable"))
	}

	switch {
	case !signer.ok:
		result.Fail(models.CheckSignature, signer.reason)
	case issuerDoc == nil:
		result.Fail(models.CheckSignature, "issuer document unavailable to check the signature")
	case !issuerDoc.Document.AssertsAddress(signerAddr):
		result.Fail(models.CheckSignature, "signature was not produced by an issuer assertion key")
	default:
		result.Pass(models.CheckSignature)
	}
	issuerOut.record(result, models.CheckIssuer)
	revoked.record(result, models.CheckRevocation)
	status.record(result, models.CheckStatus)

	switch {
	case !revoked.ok:
		result.Status = models.StatusRevoked
	case recordStatus != "":
		result.Status = recordStatus
	case result.Status == "":
		result.Status = models.StatusActive
	}
	return s.finish(ctx, vc, result, start), nil
}

func (s *Service) finish(ctx context.Context, vc *models.VerifiableCredential, result *models.VerificationResult, start time.Time) *models.VerificationResult {
	result.Finalize()
	if s.metrics != nil {
		s.metrics.ObserveVerification(result.Valid, start)
	}
	reason := "valid"
	if !result.Valid {
		reason = "invalid"
	}
	s.emit(ctx, audit.EventCredentialVerified, vc, reason)
	return result
}

// Revoke moves the credential to revoked and publishes its entry in the
// revocation registry. issuer is the acting DID and must be the credential's
// issuer.
func (s *Service) Revoke(ctx context.Context, issuer, id, reason string) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "credential.Revoke")
	defer span.End()

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if current.Issuer() != issuer {
		return nil, credentialErr(dErrors.New(dErrors.CodeForbidden, "only the issuer may change credential status"))
	}
	if err := asConflict(current.CanRevoke()); err != nil {
		return nil, err
	}
	// The registry entry is idempotent, so a revocation that loses the race
	// below leaves the registry correct.
	anchor, err := s.revocation.Revoke(ctx, issuer, id)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	record, err := s.store.Execute(ctx, id,
		func(r *models.Record) error { return asConflict(r.CanRevoke()) },
		func(r *models.Record) {
			r.ApplyRevocation(reason, now)
			if anchor != nil {
				r.Anchor = anchor
			}
		},
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	s.emit(ctx, audit.EventCredentialRevoked, &record.Credential, reason)
	if s.metrics != nil {
		s.metrics.IncrementStatusChange(string(models.StatusRevoked))
	}
	return record, nil
}

func (s *Service) Suspend(ctx context.Context, issuer, id, reason string) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "credential.Suspend")
	defer span.End()

	now := requestcontext.Now(ctx)
	return s.transition(ctx, issuer, id, audit.EventCredentialSuspended, reason, models.StatusSuspended,
		func(r *models.Record) error { return r.CanSuspend() },
		func(r *models.Record) { r.ApplySuspension(reason, now) },
	)
}

func (s *Service) Reinstate(ctx context.Context, issuer, id string) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "credential.Reinstate")
	defer span.End()

	now := requestcontext.Now(ctx)
	return s.transition(ctx, issuer, id, audit.EventCredentialReinstated, "", models.StatusActive,
		func(r *models.Record) error { return r.CanReinstate() },
		func(r *models.Record) { r.ApplyReinstatement(now) },
	)
}

func (s *Service) transition(ctx context.Context, issuer, id string, event audit.AuditEvent, reason string, target models.Status, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	record, err := s.store.Execute(ctx, id,
		func(r *models.Record) error {
			if r.Issuer() != issuer {
				return credentialErr(dErrors.New(dErrors.CodeForbidden, "only the issuer may change credential status"))
			}
			return asConflict(validate(r))
		},
		mutate,
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	s.emit(ctx, event, &record.Credential, reason)
	if s.metrics != nil {
		s.metrics.IncrementStatusChange(string(target))
	}
	return record, nil
}

// Get returns the record to its issuer or subject.
func (s *Service) Get(ctx context.Context, id string) (*models.Record, error) {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	caller := requestcontext.DID(ctx)
	if caller == "" {
		return nil, credentialErr(dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	if caller != record.Issuer() && caller != record.Subject() {
		// Indistinguishable from a missing credential for third parties.
		return nil, credentialErr(dErrors.New(dErrors.CodeNotFound, "credential not found"))
	}
	return record, nil
}

func (s *Service) ListBySubject(ctx context.Context, subject string) ([]*models.Record, error) {
	if err := requireCaller(ctx, subject, "credentials may only be listed by their subject"); err != nil {
		return nil, err
	}
	records, err := s.store.ListBySubject(ctx, subject)
	if err != nil {
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials"))
	}
	return records, nil
}

func (s *Service) ListByIssuer(ctx context.Context, issuer string) ([]*models.Record, error) {
	if err := requireCaller(ctx, issuer, "credentials may only be listed by their issuer"); err != nil {
		return nil, err
	}
	records, err := s.store.ListByIssuer(ctx, issuer)
	if err != nil {
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials"))
	}
	return records, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, vc *models.VerifiableCredential, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, audit.Event{
		DID:      vc.CredentialSubject.ID,
		Subject:  vc.ID,
		Action:   string(event),
		Reason:   reason,
		ActorDID: requestcontext.DID(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func recoverSigner(vc *models.VerifiableCredential) (common.Address, error) {
	digest, err := vc.SigningDigest()
	if err != nil {
		return common.Address{}, err
	}
	return didkey.RecoverHex(digest, vc.Proof.ProofValue)
}

func validateShape(vc *models.VerifiableCredential) error {
	switch {
	case !models.ValidID(vc.ID):
		return credentialErr(dErrors.New(dErrors.CodeValidation, "credential id must be a urn:uuid"))
	case !vc.HasType(models.TypeVerifiableCredential):
		return credentialErr(dErrors.New(dErrors.CodeValidation, "credential type must include VerifiableCredential"))
	case !didkey.IsValid(vc.CredentialSubject.ID):
		return credentialErr(dErrors.New(dErrors.CodeValidation, "credentialSubject.id must be a did:base identifier"))
	case vc.IssuanceDate.IsZero():
		return credentialErr(dErrors.New(dErrors.CodeValidation, "issuanceDate is required"))
	case vc.Proof == nil || vc.Proof.ProofValue == "":
		return credentialErr(dErrors.New(dErrors.CodeValidation, "proof is required"))
	}
	return nil
}

func requireCaller(ctx context.Context, want, message string) error {
	caller := requestcontext.DID(ctx)
	if caller == "" {
		return credentialErr(dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	if caller != want {
		return credentialErr(dErrors.New(dErrors.CodeForbidden, message))
	}
	return nil
}

func asConflict(err error) error {
	if err != nil && dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return credentialErr(dErrors.New(dErrors.CodeConflict, de.Message))
		}
	}
	return err
}

func wrapStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return credentialErr(dErrors.New(dErrors.CodeNotFound, "credential not found"))
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "credential store failure"))
	}
}

func credentialErr(err *dErrors.Error) *dErrors.Error {
	return err.In(dErrors.KindCredential)
}
