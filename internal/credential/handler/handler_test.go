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
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"baseid/internal/credential/handler/mocks"
	"baseid/internal/credential/models"
	"baseid/internal/credential/service"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/requestcontext"
)

const (
	issuerDID  = "did:base:970e8128ab834e8eac17ab8e3812f010678cf791"
	subjectDID = "did:base:2c7536e3605d9c16a7a3d7b1898e529396a65c23"
	credID     = "urn:uuid:7f1d6f2e-3b9a-4a47-9d8e-3c1f1b0b2a11"
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
	fakeAdmin := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Admin-Token") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	s.router = chi.NewRouter()
	New(s.service, fakeAuth, fakeAdmin, logger).Register(s.router)
}

func (s *HandlerSuite) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func as(did string) map[string]string {
	return map[string]string{"X-Test-DID": did}
}

func testCredential() *models.VerifiableCredential {
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &models.VerifiableCredential{
		Context:           []string{models.ContextCredentialsV1},
		ID:                credID,
		Type:              []string{models.TypeVerifiableCredential},
		Issuer:            issuerDID,
		IssuanceDate:      issued,
		CredentialSubject: models.CredentialSubject{ID: subjectDID, Claims: models.Claims{"level": "gold"}},
		Proof:             &models.Proof{Type: "EcdsaSecp256k1RecoverySignature2020", ProofValue: "abcd"},
	}
}

func testRecord(status models.Status) *models.Record {
	r := models.NewRecord(testCredential(), time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	r.Status = status
	return r
}

func (s *HandlerSuite) TestIssue() {
	s.Run("requires admin token", func() {
		rr := s.do(http.MethodPost, "/credentials/issue", `{}`, nil)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("issues with parsed ttl", func() {
		s.service.EXPECT().
			Issue(gomock.Any(), service.IssueRequest{
				Subject: subjectDID,
				Types:   []string{"KYCCredential"},
				Claims:  models.Claims{"level": "gold"},
				TTL:     720 * time.Hour,
			}).
			Return(testCredential(), nil)

		rr := s.do(http.MethodPost, "/credentials/issue",
			`{"subject":"`+subjectDID+`","type":["KYCCredential"],"claims":{"level":"gold"},"ttl":"720h"}`,
			map[string]string{"X-Admin-Token": "secret"})

		s.Equal(http.StatusCreated, rr.Code)
		var body struct {
			Credential models.VerifiableCredential `json:"credential"`
		}
		s.Require().NoError(json.NewDecoder(rr.Body).Decode(&body))
		s.Equal(credID, body.Credential.ID)
		s.Equal("gold", body.Credential.CredentialSubject.Claims["level"])
	})

	s.Run("rejects invalid subject", func() {
		rr := s.do(http.MethodPost, "/credentials/issue",
			`{"subject":"did:web:example.com","claims":{"a":1}}`,
			map[string]string{"X-Admin-Token": "secret"})
		s.Equal(http.StatusBadRequest, rr.Code)
		s.Contains(rr.Body.String(), "subject must be a did:base identifier")
	})

	s.Run("rejects malformed ttl", func() {
		rr := s.do(http.MethodPost, "/credentials/issue",
			`{"subject":"`+subjectDID+`","claims":{"a":1},"ttl":"soon"}`,
			map[string]string{"X-Admin-Token": "secret"})
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *HandlerSuite) TestVerifyIsPublic() {
	result := models.NewVerificationResult()
	result.Pass(models.CheckSignature)
	result.Fail(models.CheckRevocation, "credential is revoked")
	result.Status = models.StatusRevoked
	result.Finalize()

	s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, vc *models.VerifiableCredential) (*models.VerificationResult, error) {
			s.Equal(credID, vc.ID)
			s.Equal("gold", vc.CredentialSubject.Claims["level"])
			return result, nil
		})

	payload, err := json.Marshal(CredentialRequest{Credential: testCredential()})
	s.Require().NoError(err)
	rr := s.do(http.MethodPost, "/credentials/verify", string(payload), nil)

	s.Equal(http.StatusOK, rr.Code)
	var body models.VerificationResult
	s.Require().NoError(json.NewDecoder(rr.Body).Decode(&body))
	s.False(body.Valid)
	s.False(body.Checks[models.CheckRevocation])
	s.Equal(models.StatusRevoked, body.Status)

	s.Run("infrastructure failure is unavailable", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "credential verification unavailable"))
		rr := s.do(http.MethodPost, "/credentials/verify", string(payload), nil)
		s.Equal(http.StatusServiceUnavailable, rr.Code)
	})

	s.Run("missing credential", func() {
		rr := s.do(http.MethodPost, "/credentials/verify", `{}`, nil)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *HandlerSuite) TestRegister() {
	payload, err := json.Marshal(CredentialRequest{Credential: testCredential()})
	s.Require().NoError(err)

	s.Run("requires authentication", func() {
		rr := s.do(http.MethodPost, "/credentials", string(payload), nil)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("registers", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, vc *models.VerifiableCredential) (*models.Record, error) {
				s.Equal(issuerDID, requestcontext.DID(ctx))
				return testRecord(models.StatusActive), nil
			})
		rr := s.do(http.MethodPost, "/credentials", string(payload), as(issuerDID))
		s.Equal(http.StatusCreated, rr.Code)
		s.Contains(rr.Body.String(), `"status":"active"`)
	})
}

func (s *HandlerSuite) TestLifecycle() {
	s.Run("revoke passes caller as issuer", func() {
		s.service.EXPECT().Revoke(gomock.Any(), issuerDID, credID, "key compromised").
			Return(testRecord(models.StatusRevoked), nil)
		rr := s.do(http.MethodPost, "/credentials/"+credID+"/revoke", `{"reason":"key compromised"}`, as(issuerDID))
		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), `"status":"revoked"`)
	})

	s.Run("revoke requires a reason", func() {
		rr := s.do(http.MethodPost, "/credentials/"+credID+"/revoke", `{}`, as(issuerDID))
		s.Equal(http.StatusBadRequest, rr.Code)
		s.Contains(rr.Body.String(), "reason is required")
	})

	s.Run("suspend by non issuer is forbidden", func() {
		s.service.EXPECT().Suspend(gomock.Any(), subjectDID, credID, "review").
			Return(nil, dErrors.New(dErrors.CodeForbidden, "only the issuer may change credential status"))
		rr := s.do(http.MethodPost, "/credentials/"+credID+"/suspend", `{"reason":"review"}`, as(subjectDID))
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("reinstate of revoked credential conflicts", func() {
		s.service.EXPECT().Reinstate(gomock.Any(), issuerDID, credID).
			Return(nil, dErrors.New(dErrors.CodeConflict, "cannot move credential from revoked to active"))
		rr := s.do(http.MethodPost, "/credentials/"+credID+"/reinstate", "", as(issuerDID))
		s.Equal(http.StatusConflict, rr.Code)
	})
}

func (s *HandlerSuite) TestReads() {
	s.Run("get", func() {
		s.service.EXPECT().Get(gomock.Any(), credID).Return(testRecord(models.StatusSuspended), nil)
		rr := s.do(http.MethodGet, "/credentials/"+credID, "", as(subjectDID))
		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), `"status":"suspended"`)
	})

	s.Run("list by subject", func() {
		s.service.EXPECT().ListBySubject(gomock.Any(), subjectDID).
			Return([]*models.Record{testRecord(models.StatusActive)}, nil)
		rr := s.do(http.MethodGet, "/credentials?subject="+subjectDID, "", as(subjectDID))
		s.Equal(http.StatusOK, rr.Code)
		var body listResponse
		s.Require().NoError(json.NewDecoder(rr.Body).Decode(&body))
		s.Len(body.Credentials, 1)
	})

	s.Run("empty list by issuer is an empty array", func() {
		s.service.EXPECT().ListByIssuer(gomock.Any(), issuerDID).Return(nil, nil)
		rr := s.do(http.MethodGet, "/credentials?issuer="+issuerDID, "", as(issuerDID))
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"credentials":[]}`, rr.Body.String())
	})

	s.Run("list needs exactly one filter", func() {
		rr := s.do(http.MethodGet, "/credentials?subject="+subjectDID+"&issuer="+issuerDID, "", as(issuerDID))
		s.Equal(http.StatusBadRequest, rr.Code)
		rr = s.do(http.MethodGet, "/credentials", "", as(issuerDID))
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}
