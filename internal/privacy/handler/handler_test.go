package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	credmodels "baseid/internal/credential/models"
	presmodels "baseid/internal/presentation/models"
	"baseid/internal/privacy/handler/mocks"
	"baseid/internal/privacy/models"
	dErrors "baseid/pkg/domain-errors"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/requestcontext"
)

const (
	holderDID = "did:base:970e8128ab834e8eac17ab8e3812f010678cf791"
	otherDID  = "did:base:2c7536e3605d9c16a7a3d7b1898e529396a65c23"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fakeAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			did := r.Header.Get("X-Test-DID")
			if did == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithDID(r.Context(), did)))
		})
	}
	s.router = chi.NewRouter()
	New(s.service, fakeAuth, logger).Register(s.router)
}

func (s *HandlerSuite) do(method, path, body string, did string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if did != "" {
		req.Header.Set("X-Test-DID", did)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func testCredential() *credmodels.VerifiableCredential {
	return &credmodels.VerifiableCredential{
		Context:           []string{credmodels.ContextCredentialsV1},
		ID:                "urn:uuid:7f1d6f2e-3b9a-4a47-9d8e-3c1f1b0b2a11",
		Type:              []string{credmodels.TypeVerifiableCredential},
		Issuer:            otherDID,
		IssuanceDate:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CredentialSubject: credmodels.CredentialSubject{ID: holderDID, Claims: credmodels.Claims{"age": 36.0, "name": "Ada"}},
		Proof: &credmodels.Proof{
			ProofValue:        "abcd",
			DisclosureDigests: map[string]string{"age": "aa", "name": "bb"},
		},
		Disclosures: map[string]string{"age": "01", "name": "02"},
	}
}

func (s *HandlerSuite) TestSettings() {
	s.Run("requires authentication", func() {
		rr := s.do(http.MethodGet, "/privacy/"+holderDID, "", "")
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("get", func() {
		s.service.EXPECT().Get(gomock.Any(), holderDID).Return(models.Defaults(holderDID), nil)
		rr := s.do(http.MethodGet, "/privacy/"+holderDID, "", holderDID)
		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), `"defaultDisclosure":[]`)
	})

	s.Run("get of another did is forbidden", func() {
		s.service.EXPECT().Get(gomock.Any(), holderDID).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "only the did controller may manage its privacy"))
		rr := s.do(http.MethodGet, "/privacy/"+holderDID, "", otherDID)
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("update", func() {
		s.service.EXPECT().
			Update(gomock.Any(), holderDID, models.Settings{
				Discoverable:      true,
				DefaultDisclosure: []string{"age"},
				ShareAuditTrail:   true,
			}).
			Return(&models.Settings{DID: holderDID, Discoverable: true, DefaultDisclosure: []string{"age"}, ShareAuditTrail: true}, nil)
		rr := s.do(http.MethodPut, "/privacy/"+holderDID,
			`{"discoverable":true,"defaultDisclosure":["age"],"shareAuditTrail":true}`, holderDID)
		s.Equal(http.StatusOK, rr.Code)

		var body models.Settings
		s.Require().NoError(json.NewDecoder(rr.Body).Decode(&body))
		s.True(body.Discoverable)
		s.Equal([]string{"age"}, body.DefaultDisclosure)
	})

	s.Run("update rejects empty claim names", func() {
		rr := s.do(http.MethodPut, "/privacy/"+holderDID, `{"defaultDisclosure":[""]}`, holderDID)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *HandlerSuite) TestDisclose() {
	vc := testCredential()
	payload, err := json.Marshal(DiscloseRequest{Credential: vc, Claims: []string{"age"}})
	s.Require().NoError(err)

	s.Run("requires authentication", func() {
		rr := s.do(http.MethodPost, "/privacy/disclosures", string(payload), "")
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("returns unsigned presentation", func() {
		s.service.EXPECT().Disclose(gomock.Any(), gomock.Any(), []string{"age"}).
			DoAndReturn(func(_ context.Context, got *credmodels.VerifiableCredential, _ []string) (*presmodels.VerifiablePresentation, error) {
				s.Equal("01", got.Disclosures["age"])
				derived := got.Clone()
				derived.CredentialSubject.Claims = credmodels.Claims{"age": 36.0}
				derived.Disclosures = map[string]string{"age": "01"}
				return presmodels.New(holderDID, derived), nil
			})
		rr := s.do(http.MethodPost, "/privacy/disclosures", string(payload), holderDID)
		s.Equal(http.StatusOK, rr.Code)

		var body presmodels.VerifiablePresentation
		s.Require().NoError(json.NewDecoder(rr.Body).Decode(&body))
		s.Equal(holderDID, body.Holder)
		s.Nil(body.Proof)
		s.Require().Len(body.VerifiableCredential, 1)
		s.NotContains(body.VerifiableCredential[0].CredentialSubject.Claims, "name")
	})

	s.Run("disabled registry is forbidden", func() {
		s.service.EXPECT().Disclose(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "selective disclosure requires zk proofs to be enabled"))
		rr := s.do(http.MethodPost, "/privacy/disclosures", string(payload), holderDID)
		s.Equal(http.StatusForbidden, rr.Code)
	})
}

func (s *HandlerSuite) TestVerifyDisclosureIsPublic() {
	s.service.EXPECT().VerifyDisclosure(gomock.Any(), gomock.Any()).
		Return(&models.DisclosureResult{Valid: true, Disclosed: []string{"age", "name"}})

	payload, err := json.Marshal(VerifyDisclosureRequest{Credential: testCredential()})
	s.Require().NoError(err)
	rr := s.do(http.MethodPost, "/privacy/disclosures/verify", string(payload), "")
	s.Equal(http.StatusOK, rr.Code)

	var body models.DisclosureResult
	s.Require().NoError(json.NewDecoder(rr.Body).Decode(&body))
	s.True(body.Valid)
	s.Equal([]string{"age", "name"}, body.Disclosed)
}

func (s *HandlerSuite) TestVerifyIdentityProof() {
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	s.Run("verifies", func() {
		s.service.EXPECT().VerifyIdentityProof(gomock.Any(), &models.IdentityProof{
			DID:        holderDID,
			Challenge:  "nonce",
			Domain:     "verifier.example",
			Created:    created,
			ProofValue: "abcd",
		}).Return(&models.IdentityProofResult{Valid: true, DID: holderDID}, nil)

		rr := s.do(http.MethodPost, "/privacy/identity-proofs/verify",
			`{"did":"`+holderDID+`","challenge":"nonce","domain":"verifier.example","created":"2026-04-01T08:00:00Z","proofValue":"abcd"}`, "")
		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), `"valid":true`)
	})

	s.Run("malformed created", func() {
		rr := s.do(http.MethodPost, "/privacy/identity-proofs/verify",
			`{"did":"`+holderDID+`","challenge":"nonce","created":"yesterday","proofValue":"abcd"}`, "")
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("registry unavailable", func() {
		s.service.EXPECT().VerifyIdentityProof(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "did store unavailable"))
		rr := s.do(http.MethodPost, "/privacy/identity-proofs/verify",
			`{"did":"`+holderDID+`","challenge":"nonce","created":"2026-04-01T08:00:00Z","proofValue":"abcd"}`, "")
		s.Equal(http.StatusServiceUnavailable, rr.Code)
	})
}

func (s *HandlerSuite) TestListDiscoverable() {
	s.Run("default limit", func() {
		s.service.EXPECT().ListDiscoverable(gomock.Any(), 0).Return([]string{holderDID}, nil)
		rr := s.do(http.MethodGet, "/privacy/discoverable", "", "")
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"dids":["`+holderDID+`"]}`, rr.Body.String())
	})

	s.Run("explicit limit", func() {
		s.service.EXPECT().ListDiscoverable(gomock.Any(), 10).Return([]string{}, nil)
		rr := s.do(http.MethodGet, "/privacy/discoverable?limit=10", "", "")
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"dids":[]}`, rr.Body.String())
	})

	s.Run("bad limit", func() {
		rr := s.do(http.MethodGet, "/privacy/discoverable?limit=-1", "", "")
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *HandlerSuite) TestAuditTrailDropsRequestMetadata() {
	s.service.EXPECT().AuditTrail(gomock.Any(), holderDID).Return([]audit.Event{{
		ID:        uuid.New(),
		Category:  audit.CategoryCompliance,
		Timestamp: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		DID:       holderDID,
		Action:    string(audit.EventDIDRegistered),
		ClientIP:  "203.0.113.9",
		Client:    "curl/8.0",
	}}, nil)

	rr := s.do(http.MethodGet, "/privacy/"+holderDID+"/audit", "", holderDID)
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), string(audit.EventDIDRegistered))
	s.NotContains(rr.Body.String(), "203.0.113.9")
	s.NotContains(rr.Body.String(), "curl/8.0")
}
