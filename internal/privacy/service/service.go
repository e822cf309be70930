package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	credmodels "baseid/internal/credential/models"
	didmodels "baseid/internal/did/models"
	presmodels "baseid/internal/presentation/models"
	"baseid/internal/privacy/disclosure"
	privacymetrics "baseid/internal/privacy/metrics"
	"baseid/internal/privacy/models"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/didkey"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/platform/sentinel"
	stringutil "baseid/pkg/platform/strings"
	"baseid/pkg/requestcontext"
)

const (
	defaultProofMaxAge = 5 * time.Minute
	maxClockSkew       = time.Minute
	maxDiscoverable    = 500
)

type Store interface {
	Find(ctx context.Context, did string) (*models.Settings, error)
	Save(ctx context.Context, settings *models.Settings) error
	ListDiscoverable(ctx context.Context) ([]string, error)
}

type DIDResolver interface {
	RequireActive(ctx context.Context, did string) (*didmodels.Record, error)
	ListActive(ctx context.Context, among []string, limit int) ([]*didmodels.Record, error)
}

// AuditTrail reads persisted audit events.
type AuditTrail interface {
	ListByDID(ctx context.Context, did string) ([]audit.Event, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

var tracer = otel.Tracer("baseid/privacy")

type Config struct {
	EnablePrivacy  bool
	EnableZKProofs bool
	// ProofMaxAge bounds how old an identity proof may be. Defaults to five
	// minutes.
	ProofMaxAge time.Duration
}

// Service is the privacy manager: per-DID settings, selective disclosure and
// identity proofs.
type Service struct {
	Config

	store   Store
	dids    DIDResolver
	trail   AuditTrail
	logger  *slog.Logger
	audit   AuditPublisher
	metrics *privacymetrics.Metrics
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

func WithAuditTrail(trail AuditTrail) Option {
	return func(s *Service) {
		s.trail = trail
	}
}

func WithMetrics(m *privacymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, dids DIDResolver, cfg Config, opts ...Option) *Service {
	if cfg.ProofMaxAge <= 0 {
		cfg.ProofMaxAge = defaultProofMaxAge
	}
	s := &Service{Config: cfg, store: store, dids: dids, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the caller's own settings, or the defaults when none were
// saved.
func (s *Service) Get(ctx context.Context, did string) (*models.Settings, error) {
	if err := requireController(ctx, did); err != nil {
		return nil, err
	}
	return s.Lookup(ctx, did)
}

// Lookup returns the settings of did without an ownership check. It is used
// by components that enforce a holder's preferences.
func (s *Service) Lookup(ctx context.Context, did string) (*models.Settings, error) {
	settings, err := s.store.Find(ctx, did)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Defaults(did), nil
	}
	if err != nil {
		return nil, privacyErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to load privacy settings"))
	}
	return settings, nil
}

// Update replaces the caller's settings. The DID must be active.
func (s *Service) Update(ctx context.Context, did string, update models.Settings) (*models.Settings, error) {
	ctx, span := tracer.Start(ctx, "privacy.Update")
	defer span.End()

	if err := requireController(ctx, did); err != nil {
		return nil, err
	}
	if _, err := s.dids.RequireActive(ctx, did); err != nil {
		return nil, err
	}
	if update.RequireSelectiveDisclosure && !s.selectiveDisclosureEnabled() {
		return nil, privacyErr(dErrors.New(dErrors.CodeForbidden, "selective disclosure is disabled on this registry"))
	}

	settings := &models.Settings{
		DID:                        did,
		Discoverable:               update.Discoverable,
		DefaultDisclosure:          stringutil.DedupeAndTrim(update.DefaultDisclosure),
		RequireSelectiveDisclosure: update.RequireSelectiveDisclosure,
		ShareAuditTrail:            update.ShareAuditTrail,
		UpdatedAt:                  requestcontext.Now(ctx),
	}
	if settings.DefaultDisclosure == nil {
		settings.DefaultDisclosure = []string{}
	}
	if err := s.store.Save(ctx, settings); err != nil {
		return nil, privacyErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to save privacy settings"))
	}
	s.emit(ctx, audit.EventPrivacySettingsUpdated, did, "")
	if s.metrics != nil {
		s.metrics.IncrementSettingsUpdated()
	}
	return settings, nil
}

func (s *Service) selectiveDisclosureEnabled() bool {
	return s.EnablePrivacy && s.EnableZKProofs
}

// Disclose derives an unsigned presentation revealing only names from vc.
// vc must carry the holder's disclosure salts. When names is empty the
// holder's DefaultDisclosure is used. The holder signs the result.
func (s *Service) Disclose(ctx context.Context, vc *credmodels.VerifiableCredential, names []string) (*presmodels.VerifiablePresentation, error) {
	ctx, span := tracer.Start(ctx, "privacy.Disclose")
	defer span.End()

	if !s.selectiveDisclosureEnabled() {
		return nil, privacyErr(dErrors.New(dErrors.CodeForbidden, "selective disclosure requires zk proofs to be enabled"))
	}
	holder := vc.CredentialSubject.ID
	if err := requireController(ctx, holder); err != nil {
		return nil, err
	}
	names = stringutil.DedupeAndTrim(names)
	if len(names) == 0 {
		settings, err := s.Lookup(ctx, holder)
		if err != nil {
			return nil, err
		}
		names = settings.DefaultDisclosure
	}
	if len(names) == 0 {
		return nil, privacyErr(dErrors.New(dErrors.CodeValidation, "no claims selected for disclosure"))
	}

	derived, err := disclosure.Select(vc, vc.Disclosures, names)
	if err != nil {
		return nil, err
	}
	if err := disclosure.Verify(derived); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventDisclosureCreated, holder, vc.ID)
	if s.metrics != nil {
		s.metrics.IncrementDisclosures()
	}
	return presmodels.New(holder, derived), nil
}

// VerifyDisclosure recomputes the commitments of the revealed claims.
func (s *Service) VerifyDisclosure(_ context.Context, vc *credmodels.VerifiableCredential) *models.DisclosureResult {
	names := make([]string, 0, len(vc.CredentialSubject.Claims))
	for name := range vc.CredentialSubject.Claims {
		names = append(names, name)
	}
	sort.Strings(names)
	result := &models.DisclosureResult{Disclosed: names}

	if vc.Proof == nil || len(vc.Proof.DisclosureDigests) == 0 {
		result.Error = "credential has no claim commitments"
		return result
	}
	if err := disclosure.Verify(vc); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Valid = true
	return result
}

// VerifyIdentityProof checks that the proof is fresh and signed by an
// authentication key of an active DID. Errors are reserved for failures to
// reach the DID registry.
func (s *Service) VerifyIdentityProof(ctx context.Context, proof *models.IdentityProof) (*models.IdentityProofResult, error) {
	ctx, span := tracer.Start(ctx, "privacy.VerifyIdentityProof")
	defer span.End()

	result := &models.IdentityProofResult{DID: proof.DID}
	defer func() {
		if s.metrics != nil {
			s.metrics.IncrementIdentityProof(result.Valid)
		}
	}()

	now := requestcontext.Now(ctx)
	switch {
	case proof.Challenge == "":
		result.Error = "challenge is required"
		return result, nil
	case proof.Created.After(now.Add(maxClockSkew)):
		result.Error = "proof is created in the future"
		return result, nil
	case now.Sub(proof.Created) > s.ProofMaxAge:
		result.Error = "proof has expired"
		return result, nil
	}

	record, err := s.dids.RequireActive(ctx, proof.DID)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeNotFound, dErrors.CodeBadRequest, dErrors.CodeConflict:
			result.Error = err.Error()
			return result, nil
		default:
			return nil, err
		}
	}
	addr, err := didkey.RecoverHex(proof.Digest(), proof.ProofValue)
	if err != nil || !record.Document.ControlsAddress(addr) {
		result.Error = "proof was not signed by an authentication key of the did"
		return result, nil
	}
	result.Valid = true
	return result, nil
}

// ListDiscoverable returns active DIDs whose controllers opted into the
// holder index, oldest first.
func (s *Service) ListDiscoverable(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > maxDiscoverable {
		limit = maxDiscoverable
	}
	listed, err := s.store.ListDiscoverable(ctx)
	if err != nil {
		return nil, privacyErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to load privacy settings"))
	}
	out := make([]string, 0, min(len(listed), limit))
	if len(listed) == 0 {
		return out, nil
	}
	records, err := s.dids.ListActive(ctx, listed, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		out = append(out, r.DID())
	}
	return out, nil
}

// AuditTrail returns the audit events about did to its controller, or to any
// authenticated caller when the controller shares the trail.
func (s *Service) AuditTrail(ctx context.Context, did string) ([]audit.Event, error) {
	if s.trail == nil {
		return nil, privacyErr(dErrors.New(dErrors.CodeUnavailable, "audit trail is not available"))
	}
	caller := requestcontext.DID(ctx)
	if caller == "" {
		return nil, privacyErr(dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	if caller != did {
		settings, err := s.Lookup(ctx, did)
		if err != nil {
			return nil, err
		}
		if !settings.ShareAuditTrail {
			return nil, privacyErr(dErrors.New(dErrors.CodeForbidden, "audit trail is not shared"))
		}
	}
	events, err := s.trail.ListByDID(ctx, did)
	if err != nil {
		return nil, privacyErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail"))
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, did, subject string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, audit.Event{
		DID:      did,
		Subject:  subject,
		Action:   string(event),
		ActorDID: requestcontext.DID(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func requireController(ctx context.Context, did string) error {
	if !didkey.IsValid(did) {
		return privacyErr(dErrors.New(dErrors.CodeBadRequest, "invalid did:base identifier"))
	}
	caller := requestcontext.DID(ctx)
	if caller == "" {
		return privacyErr(dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	if caller != did {
		return privacyErr(dErrors.New(dErrors.CodeForbidden, "only the did controller may manage its privacy"))
	}
	return nil
}

func privacyErr(err *dErrors.Error) *dErrors.Error {
	return err.In(dErrors.KindPrivacy)
}
