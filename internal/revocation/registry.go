package revocation

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"baseid/internal/ledger"
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/requestcontext"
)

// Store persists entries per issuer.
type Store interface {
	Add(ctx context.Context, issuer string, revokedAt time.Time, entries ...string) error
	Contains(ctx context.Context, issuer, entry string) (bool, error)
	List(ctx context.Context, issuer string) ([]string, error)
}

type Ledger interface {
	Anchor(ctx context.Context, kind ledger.Kind, key string, digest []byte) (ledger.Anchor, error)
}

type Registry struct {
	store   Store
	ledger  Ledger
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Registry)

// WithLedger anchors each revocation batch.
func WithLedger(l Ledger) Option {
	return func(r *Registry) {
		r.ledger = l
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Revoke records credentialID as revoked by issuer. Revoking twice is a no-op.
// The returned anchor is nil when no ledger is configured or anchoring failed.
func (r *Registry) Revoke(ctx context.Context, issuer, credentialID string) (*ledger.Anchor, error) {
	return r.RevokeBatch(ctx, issuer, []string{credentialID})
}

// RevokeBatch records several credentials of one issuer in a single write.
func (r *Registry) RevokeBatch(ctx context.Context, issuer string, credentialIDs []string) (*ledger.Anchor, error) {
	if err := requireIssuer(issuer); err != nil {
		return nil, err
	}
	entries := make([]string, 0, len(credentialIDs))
	for _, id := range credentialIDs {
		if strings.TrimSpace(id) == "" {
			return nil, credentialErr(dErrors.New(dErrors.CodeValidation, "credential id is required"))
		}
		entries = append(entries, Entry(issuer, id))
	}
	if len(entries) == 0 {
		return nil, nil
	}

	if err := r.store.Add(ctx, issuer, requestcontext.Now(ctx), entries...); err != nil {
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to write revocation entries"))
	}
	r.metrics.addRevoked(len(entries))
	return r.anchor(ctx, issuer, entries), nil
}

// IsRevoked looks up the entry for credentialID.
func (r *Registry) IsRevoked(ctx context.Context, issuer, credentialID string) (bool, error) {
	defer r.metrics.observeLookup(time.Now())
	revoked, err := r.store.Contains(ctx, issuer, Entry(issuer, credentialID))
	if err != nil {
		return false, credentialErr(dErrors.Wrap(err, dErrors.CodeUnavailable, "revocation registry unavailable"))
	}
	return revoked, nil
}

// List returns the published entries of issuer.
func (r *Registry) List(ctx context.Context, issuer string) ([]string, error) {
	if err := requireIssuer(issuer); err != nil {
		return nil, err
	}
	entries, err := r.store.List(ctx, issuer)
	if err != nil {
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to list revocation entries"))
	}
	return entries, nil
}

func (r *Registry) anchor(ctx context.Context, issuer string, entries []string) *ledger.Anchor {
	if r.ledger == nil {
		return nil
	}
	sorted := append([]string(nil), entries...)
	sort.Strings(sorted)
	a, err := r.ledger.Anchor(ctx, ledger.KindRevocation, issuer, didkey.Digest([]byte(strings.Join(sorted, ","))))
	if err != nil {
		r.logger.WarnContext(ctx, "failed to anchor revocation",
			"issuer", issuer,
			"entries", len(entries),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
	return &a
}

func requireIssuer(issuer string) error {
	if !didkey.IsValid(issuer) {
		return credentialErr(dErrors.New(dErrors.CodeBadRequest, "issuer must be a did:base identifier"))
	}
	return nil
}

func credentialErr(err *dErrors.Error) *dErrors.Error {
	return err.In(dErrors.KindCredential)
}
