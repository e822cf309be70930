package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	didmetrics "baseid/internal/did/metrics"
	"baseid/internal/did/models"
	"baseid/internal/ledger"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/didkey"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/platform/sentinel"
	"baseid/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, record *models.Record) error
	FindByDID(ctx context.Context, did string) (*models.Record, error)
	Execute(ctx context.Context, did string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
	SetAnchor(ctx context.Context, did string, version int, anchor ledger.Anchor) error
	ListActive(ctx context.Context, among []string, limit int) ([]*models.Record, error)
}

type Ledger interface {
	Anchor(ctx context.Context, kind ledger.Kind, key string, digest []byte) (ledger.Anchor, error)
}

type Cache interface {
	Get(ctx context.Context, did string) (*models.Resolution, bool)
	Set(ctx context.Context, did string, res *models.Resolution)
	Invalidate(ctx context.Context, did string)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

var tracer = otel.Tracer("baseid/did")

// Service is the DID registry.
type Service struct {
	store   Store
	ledger  Ledger
	cache   Cache
	logger  *slog.Logger
	audit   AuditPublisher
	metrics *didmetrics.Metrics
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

func WithMetrics(m *didmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func New(store Store, l Ledger, opts ...Option) *Service {
	s := &Service{store: store, ledger: l, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest carries the controller key and its proof of possession: a
// signature over didkey.RegistrationDigest of the derived DID.
type RegisterRequest struct {
	PublicKey string
	Proof     string
}

// Register derives the DID from the public key, checks the proof, anchors and
// stores the initial document.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "did.Register")
	defer span.End()

	key, err := didkey.ParsePublicKeyHex(req.PublicKey)
	if err != nil {
		return nil, identityErr(dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid secp256k1 public key"))
	}
	doc, err := models.NewDocument(key, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("did", doc.ID))

	if err := didkey.VerifyDID(doc.ID, didkey.RegistrationDigest(doc.ID), req.Proof); err != nil {
		return nil, identityErr(dErrors.Wrap(err, dErrors.CodeInvalidSignature, "registration proof does not match public key"))
	}

	record := models.NewRecord(doc)
	anchor, err := s.anchor(ctx, record)
	if err != nil {
		return nil, err
	}
	record.Anchor = &anchor

	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, identityErr(dErrors.New(dErrors.CodeConflict, "did already registered"))
		}
		return nil, identityErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to store did document"))
	}

	s.emit(ctx, audit.EventDIDRegistered, doc.ID, "")
	if s.metrics != nil {
		s.metrics.IncrementRegistered()
	}
	return record, nil
}

// Resolve returns the document and its metadata. Deactivated documents
// resolve with Metadata.Deactivated set.
func (s *Service) Resolve(ctx context.Context, did string) (*models.Resolution, error) {
	ctx, span := tracer.Start(ctx, "did.Resolve")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveResolve(time.Now())
	}

	if err := requireDID(did); err != nil {
		return nil, err
	}
	if s.cache != nil {
		res, ok := s.cache.Get(ctx, did)
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(ok)
		}
		if ok {
			return res, nil
		}
	}

	record, err := s.store.FindByDID(ctx, did)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	res := record.Resolution()
	if s.cache != nil {
		s.cache.Set(ctx, did, res)
	}
	return res, nil
}

// Get returns the stored record, bypassing the cache. Used by components
// that need the authoritative status.
func (s *Service) Get(ctx context.Context, did string) (*models.Record, error) {
	if err := requireDID(did); err != nil {
		return nil, err
	}
	record, err := s.store.FindByDID(ctx, did)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return record, nil
}

// RequireActive returns the record when did is registered and active.
func (s *Service) RequireActive(ctx context.Context, did string) (*models.Record, error) {
	record, err := s.Get(ctx, did)
	if err != nil {
		return nil, err
	}
	if !record.IsActive() {
		return nil, identityErr(dErrors.New(dErrors.CodeConflict, "did is deactivated"))
	}
	return record, nil
}

// ListActive returns active records among the given DIDs, oldest first.
func (s *Service) ListActive(ctx context.Context, among []string, limit int) ([]*models.Record, error) {
	records, err := s.store.ListActive(ctx, among, limit)
	if err != nil {
		return nil, identityErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to list dids"))
	}
	return records, nil
}

func (s *Service) AddService(ctx context.Context, did string, svc models.Service) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "did.AddService")
	defer span.End()

	now := requestcontext.Now(ctx)
	return s.update(ctx, did, "add_service",
		func(r *models.Record) error { return r.CanAddService(svc) },
		func(r *models.Record) { r.ApplyAddService(svc, now) },
	)
}

func (s *Service) RemoveService(ctx context.Context, did, serviceID string) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "did.RemoveService")
	defer span.End()

	now := requestcontext.Now(ctx)
	return s.update(ctx, did, "remove_service",
		func(r *models.Record) error { return r.CanRemoveService(serviceID) },
		func(r *models.Record) { r.ApplyRemoveService(serviceID, now) },
	)
}

// AddVerificationMethod adds a key. With authentication set the key may also
// authenticate and sign credentials for the DID.
func (s *Service) AddVerificationMethod(ctx context.Context, did string, vm models.VerificationMethod, authentication bool) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "did.AddVerificationMethod")
	defer span.End()

	now := requestcontext.Now(ctx)
	return s.update(ctx, did, "add_verification_method",
		func(r *models.Record) error { return r.CanAddVerificationMethod(vm) },
		func(r *models.Record) { r.ApplyAddVerificationMethod(vm, authentication, now) },
	)
}

// Deactivate permanently deactivates did. A second call is a conflict.
func (s *Service) Deactivate(ctx context.Context, did string) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "did.Deactivate")
	defer span.End()

	if err := requireController(ctx, did); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	record, err := s.store.Execute(ctx, did,
		func(r *models.Record) error { return asConflict(r.CanDeactivate()) },
		func(r *models.Record) { r.ApplyDeactivation(now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	s.afterWrite(ctx, record)
	s.emit(ctx, audit.EventDIDDeactivated, did, "")
	if s.metrics != nil {
		s.metrics.IncrementDeactivated()
	}
	return record, nil
}

func (s *Service) update(ctx context.Context, did, operation string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	if err := requireController(ctx, did); err != nil {
		return nil, err
	}
	record, err := s.store.Execute(ctx, did,
		func(r *models.Record) error { return asConflict(validate(r)) },
		mutate,
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	s.afterWrite(ctx, record)
	s.emit(ctx, audit.EventDIDUpdated, did, operation)
	if s.metrics != nil {
		s.metrics.IncrementUpdated(operation)
	}
	return record, nil
}

// afterWrite re-anchors the new version and drops cached resolutions. The
// write is already committed, so anchoring failures are logged and the
// record keeps its previous anchor until the next write.
func (s *Service) afterWrite(ctx context.Context, record *models.Record) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, record.DID())
	}
	anchor, err := s.anchor(ctx, record)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to anchor did update",
			"did", record.DID(),
			"version", record.Document.VersionID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	if err := s.store.SetAnchor(ctx, record.DID(), record.Document.VersionID, anchor); err != nil {
		s.logger.WarnContext(ctx, "failed to store did anchor",
			"did", record.DID(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	record.Anchor = &anchor
}

func (s *Service) anchor(ctx context.Context, record *models.Record) (ledger.Anchor, error) {
	digest, err := record.Document.Digest()
	if err != nil {
		return ledger.Anchor{}, identityErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to digest did document"))
	}
	anchor, err := s.ledger.Anchor(ctx, ledger.KindDID, record.DID(), digest)
	if err != nil {
		return ledger.Anchor{}, identityErr(dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unavailable"))
	}
	return anchor, nil
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
		ActorDID: requestcontext.DID(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func requireDID(did string) error {
	if !didkey.IsValid(did) {
		return identityErr(dErrors.New(dErrors.CodeBadRequest, "invalid did:base identifier"))
	}
	return nil
}

// requireController allows only the DID's own authenticated controller.
func requireController(ctx context.Context, did string) error {
	if err := requireDID(did); err != nil {
		return err
	}
	caller := requestcontext.DID(ctx)
	if caller == "" {
		return identityErr(dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	if caller != did {
		return identityErr(dErrors.New(dErrors.CodeForbidden, "only the did controller may modify the document"))
	}
	return nil
}

func asConflict(err error) error {
	if err != nil && dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return identityErr(dErrors.New(dErrors.CodeConflict, de.Message))
		}
	}
	return err
}

func wrapStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return identityErr(dErrors.New(dErrors.CodeNotFound, "did not found"))
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return identityErr(dErrors.Wrap(err, dErrors.CodeInternal, "did store failure"))
	}
}

func identityErr(err *dErrors.Error) *dErrors.Error {
	return err.In(dErrors.KindIdentity)
}
