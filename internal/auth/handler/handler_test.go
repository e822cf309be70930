package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"baseid/internal/auth/handler/mocks"
	"baseid/internal/auth/models"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/testutil"
)

const testDID = "did:base:970e8128ab834e8eac17ab8e3812f010678cf791"

var testNonce = strings.Repeat("ab", 32)

func newRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	passthrough := func(next http.Handler) http.Handler { return next }
	r := chi.NewRouter()
	New(svc, passthrough, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, svc
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestChallenge(t *testing.T) {
	router, svc := newRouter(t)

	t.Run("issues challenge", func(t *testing.T) {
		svc.EXPECT().Challenge(gomock.Any(), testDID).
			Return(&models.Challenge{DID: testDID, Nonce: testNonce, ExpiresAt: time.Now().Add(time.Minute)}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/challenge", map[string]string{"did": testDID})
		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusCreated, rr.Code)
		body := testutil.UnmarshalResponse[models.Challenge](t, rr)
		assert.Equal(t, testNonce, body.Nonce)
	})

	t.Run("invalid did", func(t *testing.T) {
		rr := post(router, "/auth/challenge", `{"did":"did:ethr:abc"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "did must be a did:base identifier")
	})
}

func TestToken(t *testing.T) {
	router, svc := newRouter(t)

	t.Run("returns token", func(t *testing.T) {
		svc.EXPECT().Authenticate(gomock.Any(), testDID, testNonce, "0xsig").
			Return(&models.AuthenticationResult{DID: testDID, Token: "tok", TokenType: "Bearer"}, nil)

		rr := post(router, "/auth/token", `{"did":"`+testDID+`","nonce":"`+testNonce+`","signature":"0xsig"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
		assert.Contains(t, rr.Body.String(), `"token":"tok"`)
	})

	t.Run("short nonce rejected", func(t *testing.T) {
		rr := post(router, "/auth/token", `{"did":"`+testDID+`","nonce":"abcd","signature":"0xsig"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bad signature is unauthorized", func(t *testing.T) {
		svc.EXPECT().Authenticate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "signature does not match an authentication key"))

		rr := post(router, "/auth/token", `{"did":"`+testDID+`","nonce":"`+testNonce+`","signature":"0xsig"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestSessionAndLogout(t *testing.T) {
	router, svc := newRouter(t)

	t.Run("session echoes the authenticated did", func(t *testing.T) {
		req := testutil.WithDID(httptest.NewRequest(http.MethodGet, "/auth/session", nil), testDID)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"did":"`+testDID+`"}`, rr.Body.String())
	})

	t.Run("logout", func(t *testing.T) {
		svc.EXPECT().Logout(gomock.Any()).DoAndReturn(func(ctx context.Context) error { return nil })

		req := testutil.WithAuth(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), testDID, "jti")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}
