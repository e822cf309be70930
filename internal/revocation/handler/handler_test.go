package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baseid/internal/revocation"
	"baseid/internal/revocation/store"
	"baseid/pkg/testutil"
)

const issuer = "did:base:970e8128ab834e8eac17ab8e3812f010678cf791"

func TestList(t *testing.T) {
	registry := revocation.NewRegistry(store.NewInMemory())
	_, err := registry.Revoke(context.Background(), issuer, "urn:uuid:1")
	require.NoError(t, err)

	router := chi.NewRouter()
	New(registry, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(router)

	t.Run("publishes hashed entries", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/revocations/"+issuer))

		testutil.AssertStatus(t, rr, http.StatusOK)
		body := testutil.UnmarshalResponse[listResponse](t, rr)
		assert.Equal(t, issuer, body.Issuer)
		assert.Equal(t, []string{revocation.Entry(issuer, "urn:uuid:1")}, body.Entries)
	})

	t.Run("issuer without revocations has an empty list", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/revocations/did:base:0000000000000000000000000000000000000001"))

		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.JSONEq(t, `{"issuer":"did:base:0000000000000000000000000000000000000001","entries":[]}`, rr.Body.String())
	})

	t.Run("invalid issuer", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/revocations/nope"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
		testutil.AssertErrorKind(t, rr, "credential")
	})
}
