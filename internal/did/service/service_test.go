package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	didmetrics "baseid/internal/did/metrics"
	"baseid/internal/did/models"
	"baseid/internal/did/resolver"
	"baseid/internal/did/store"
	"baseid/internal/ledger"
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/platform/audit/publisher"
	auditmemory "baseid/pkg/platform/audit/store/memory"
	"baseid/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemory
	ledger  *ledger.Memory
	audit   *auditmemory.InMemoryStore
	service *Service
	key     *didkey.KeyPair
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.ledger = ledger.NewMemory("base-sepolia", ledger.WithHistory(8))
	s.audit = auditmemory.NewInMemoryStore()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(s.store, s.ledger,
		WithLogger(logger),
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
		WithMetrics(didmetrics.New(prometheus.NewRegistry())),
		WithCache(resolver.New(time.Minute)),
	)
	var err error
	s.key, err = didkey.Generate()
	s.Require().NoError(err)
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// as returns a context authenticated as did.
func (s *ServiceSuite) as(did string) context.Context {
	return requestcontext.WithDID(s.ctx(), did)
}

func (s *ServiceSuite) register(kp *didkey.KeyPair) *models.Record {
	proof, err := kp.Sign(didkey.RegistrationDigest(kp.DID()))
	s.Require().NoError(err)
	record, err := s.service.Register(s.ctx(), RegisterRequest{PublicKey: kp.PublicKeyHex(), Proof: proof})
	s.Require().NoError(err)
	return record
}

func (s *ServiceSuite) actions() []string {
	events, err := s.audit.ListByDID(context.Background(), s.key.DID())
	s.Require().NoError(err)
	var out []string
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *ServiceSuite) TestRegister() {
	s.Run("derives did and anchors the document", func() {
		record := s.register(s.key)

		s.Equal(s.key.DID(), record.DID())
		s.Equal(models.StatusActive, record.Status)
		s.Require().NotNil(record.Anchor)
		s.Equal(ledger.KindDID, record.Anchor.Kind)
		s.Equal(uint64(84532), record.Anchor.ChainID)
		s.Len(s.ledger.History(ledger.KindDID, record.DID()), 1)
		s.Contains(s.actions(), string(audit.EventDIDRegistered))

		vm := record.Document.VerificationMethod[0]
		s.Equal(record.DID()+models.ControllerFragment, vm.ID)
		s.Equal(didkey.VerificationKeyType, vm.Type)
	})

	s.Run("duplicate registration is a conflict", func() {
		proof, err := s.key.Sign(didkey.RegistrationDigest(s.key.DID()))
		s.Require().NoError(err)

		_, err = s.service.Register(s.ctx(), RegisterRequest{PublicKey: s.key.PublicKeyHex(), Proof: proof})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.True(dErrors.HasKind(err, dErrors.KindIdentity))
	})

	s.Run("proof from another key is rejected", func() {
		kp, err := didkey.Generate()
		s.Require().NoError(err)
		other, err := didkey.Generate()
		s.Require().NoError(err)
		proof, err := other.Sign(didkey.RegistrationDigest(kp.DID()))
		s.Require().NoError(err)

		_, err = s.service.Register(s.ctx(), RegisterRequest{PublicKey: kp.PublicKeyHex(), Proof: proof})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})

	s.Run("malformed key is invalid input", func() {
		_, err := s.service.Register(s.ctx(), RegisterRequest{PublicKey: "02ff", Proof: "00"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestResolve() {
	record := s.register(s.key)

	s.Run("returns document with metadata", func() {
		res, err := s.service.Resolve(s.ctx(), record.DID())
		s.Require().NoError(err)
		s.Equal(record.DID(), res.Document.ID)
		s.Equal(1, res.Metadata.VersionID)
		s.False(res.Metadata.Deactivated)
		s.NotNil(res.Metadata.Anchor)
	})

	s.Run("invalid identifier is a bad request", func() {
		_, err := s.service.Resolve(s.ctx(), "did:base:short")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown did is not found", func() {
		other, err := didkey.Generate()
		s.Require().NoError(err)
		_, err = s.service.Resolve(s.ctx(), other.DID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("updates invalidate the cached resolution", func() {
		_, err := s.service.Resolve(s.ctx(), record.DID())
		s.Require().NoError(err)

		_, err = s.service.AddService(s.as(record.DID()), record.DID(), models.Service{ID: "#hub", Type: "LinkedDomains", ServiceEndpoint: "https://example.com"})
		s.Require().NoError(err)

		res, err := s.service.Resolve(s.ctx(), record.DID())
		s.Require().NoError(err)
		s.Equal(2, res.Metadata.VersionID)
		s.Len(res.Document.Service, 1)
	})
}

func (s *ServiceSuite) TestUpdates() {
	record := s.register(s.key)
	did := record.DID()

	s.Run("requires authentication", func() {
		_, err := s.service.AddService(s.ctx(), did, models.Service{ID: "#a", Type: "t", ServiceEndpoint: "https://a"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("only the controller may modify", func() {
		other, err := didkey.Generate()
		s.Require().NoError(err)
		_, err = s.service.AddService(s.as(other.DID()), did, models.Service{ID: "#a", Type: "t", ServiceEndpoint: "https://a"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("add and remove service bump the version and re-anchor", func() {
		updated, err := s.service.AddService(s.as(did), did, models.Service{ID: "#hub", Type: "LinkedDomains", ServiceEndpoint: "https://example.com"})
		s.Require().NoError(err)
		s.Equal(2, updated.Document.VersionID)
		s.Equal(did+"#hub", updated.Document.Service[0].ID)

		updated, err = s.service.RemoveService(s.as(did), did, "#hub")
		s.Require().NoError(err)
		s.Equal(3, updated.Document.VersionID)
		s.Empty(updated.Document.Service)
		s.Len(s.ledger.History(ledger.KindDID, did), 3)

		stored, err := s.store.FindByDID(context.Background(), did)
		s.Require().NoError(err)
		s.Require().NotNil(stored.Anchor)
		s.Equal(s.ledger.History(ledger.KindDID, did)[2].Block, stored.Anchor.Block)
	})

	s.Run("removing an unknown service is not found", func() {
		_, err := s.service.RemoveService(s.as(did), did, "#missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("added authentication key controls the document", func() {
		second, err := didkey.Generate()
		s.Require().NoError(err)
		mb, err := didkey.EncodeMultibase(second.PublicKey())
		s.Require().NoError(err)

		updated, err := s.service.AddVerificationMethod(s.as(did), did, models.VerificationMethod{
			ID: "#key-2", Type: didkey.VerificationKeyType, PublicKeyMultibase: mb,
		}, true)
		s.Require().NoError(err)

		addr, err := didkey.Address(second.DID())
		s.Require().NoError(err)
		s.True(updated.Document.ControlsAddress(addr))
		s.True(updated.Document.AssertsAddress(addr))
	})
}

func (s *ServiceSuite) TestDeactivate() {
	record := s.register(s.key)
	did := record.DID()

	deactivated, err := s.service.Deactivate(s.as(did), did)
	s.Require().NoError(err)
	s.Equal(models.StatusDeactivated, deactivated.Status)
	s.True(deactivated.Document.Deactivated)

	s.Run("resolves with deactivated metadata", func() {
		res, err := s.service.Resolve(s.ctx(), did)
		s.Require().NoError(err)
		s.True(res.Metadata.Deactivated)
	})

	s.Run("second deactivation is a conflict", func() {
		_, err := s.service.Deactivate(s.as(did), did)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("updates after deactivation are conflicts", func() {
		_, err := s.service.AddService(s.as(did), did, models.Service{ID: "#a", Type: "t", ServiceEndpoint: "https://a"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("require active rejects the record", func() {
		_, err := s.service.RequireActive(s.ctx(), did)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Contains(s.actions(), string(audit.EventDIDDeactivated))
}

type failingLedger struct{}

func (failingLedger) Anchor(context.Context, ledger.Kind, string, []byte) (ledger.Anchor, error) {
	return ledger.Anchor{}, context.DeadlineExceeded
}

func (s *ServiceSuite) TestLedgerUnavailable() {
	svc := New(s.store, failingLedger{})
	proof, err := s.key.Sign(didkey.RegistrationDigest(s.key.DID()))
	s.Require().NoError(err)

	_, err = svc.Register(s.ctx(), RegisterRequest{PublicKey: s.key.PublicKeyHex(), Proof: proof})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = s.store.FindByDID(context.Background(), s.key.DID())
	s.Error(err, "nothing is stored when anchoring fails")
}
