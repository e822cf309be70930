package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baseid/internal/ratelimit/metrics"
	"baseid/internal/ratelimit/models"
	"baseid/internal/ratelimit/store/bucket"
	"baseid/pkg/platform/middleware/metadata"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("redis: connection refused")
}

func newHandler(t *testing.T, store BucketStore, opts ...Option) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return metadata.ClientMetadata(New(store, logger, opts...).Handler(next))
}

func send(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	limits := map[models.EndpointClass]models.Limit{
		models.ClassAuth: {Requests: 2, Window: time.Minute},
	}

	t.Run("rejects over budget", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		h := newHandler(t, bucket.NewInMemoryBucketStore(), WithLimits(limits), WithMetrics(m))

		for range 2 {
			rec := send(h, http.MethodPost, "/auth/challenge", "203.0.113.7")
			require.Equal(t, http.StatusNoContent, rec.Code)
		}
		rec := send(h, http.MethodPost, "/auth/token", "203.0.113.7")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "rate_limit_exceeded", body["error"])
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("auth")))
	})

	t.Run("budgets are per ip", func(t *testing.T) {
		h := newHandler(t, bucket.NewInMemoryBucketStore(), WithLimits(limits))
		for range 2 {
			send(h, http.MethodPost, "/auth/challenge", "203.0.113.7")
		}
		rec := send(h, http.MethodPost, "/auth/challenge", "198.51.100.1")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("unclassified routes pass", func(t *testing.T) {
		h := newHandler(t, bucket.NewInMemoryBucketStore(), WithLimits(limits))
		for range 5 {
			rec := send(h, http.MethodGet, "/dids/did:base:abc", "203.0.113.7")
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("store failure fails open", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		h := newHandler(t, failingStore{}, WithMetrics(m))
		rec := send(h, http.MethodPost, "/dids", "203.0.113.7")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors))
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHandler(t, failingStore{}, WithDisabled(true))
		rec := send(h, http.MethodPost, "/dids", "203.0.113.7")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		method, path string
		want         models.EndpointClass
		limited      bool
	}{
		{http.MethodPost, "/dids", models.ClassRegistration, true},
		{http.MethodPost, "/auth/challenge", models.ClassAuth, true},
		{http.MethodPost, "/auth/token", models.ClassAuth, true},
		{http.MethodPost, "/credentials/verify", models.ClassVerify, true},
		{http.MethodPost, "/privacy/identity-proofs/verify", models.ClassVerify, true},
		{http.MethodPost, "/auth/logout", "", false},
		{http.MethodGet, "/dids", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			class, limited := models.Classify(tt.method, tt.path)
			assert.Equal(t, tt.limited, limited)
			assert.Equal(t, tt.want, class)
		})
	}
}
