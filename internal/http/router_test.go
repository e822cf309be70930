package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformmetrics "baseid/internal/platform/metrics"
	"baseid/pkg/platform/middleware/request"
	"baseid/pkg/requestcontext"
)

type echoModule struct{}

func (echoModule) Register(r chi.Router) {
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		_, _ = io.WriteString(w, requestcontext.RequestID(ctx)+"|"+requestcontext.ClientIP(ctx))
	})
}

func newTestRouter(checks ...HealthCheck) (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := platformmetrics.New(reg)
	return NewRouter(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Latency:  m,
		Gatherer: reg,
		Network:  "base-sepolia",
		Checks:   checks,
		TrustedProxies: []netip.Prefix{
			netip.MustParsePrefix("192.0.2.0/24"),
			netip.MustParsePrefix("10.0.0.0/8"),
		},
	}, echoModule{}), reg
}

func TestRouterMiddleware(t *testing.T) {
	router, _ := newTestRouter()

	t.Run("propagates request id and client ip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set(request.RequestIDHeader, "req-123")
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "req-123|203.0.113.7", rr.Body.String())
		assert.Equal(t, "req-123", rr.Header().Get(request.RequestIDHeader))
	})

	t.Run("forwarding headers from an untrusted peer are ignored", func(t *testing.T) {
		bare := NewRouter(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, echoModule{})
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set(request.RequestIDHeader, "req-456")
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rr := httptest.NewRecorder()
		bare.ServeHTTP(rr, req)
		assert.Equal(t, "req-456|192.0.2.1", rr.Body.String())
	})

	t.Run("rejects non json bodies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	})
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		router, _ := newTestRouter(HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok","network":"base-sepolia","checks":{"postgres":"ok"}}`, rr.Body.String())
	})

	t.Run("degraded", func(t *testing.T) {
		router, _ := newTestRouter(
			HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
			HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), `"redis":"unavailable"`)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `baseid_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
