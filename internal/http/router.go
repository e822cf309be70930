// Package httpapi assembles the registry's HTTP surface: the shared
// middleware chain, operational endpoints and every module's routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"baseid/pkg/platform/httputil"
	"baseid/pkg/platform/middleware/metadata"
	"baseid/pkg/platform/middleware/request"
	"baseid/pkg/platform/middleware/requesttime"
)

const (
	requestTimeout = 30 * time.Second
	healthTimeout  = 2 * time.Second
)

// Module mounts one component's routes.
type Module interface {
	Register(r chi.Router)
}

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Config struct {
	Logger   *slog.Logger
	Latency  request.LatencyObserver
	Gatherer prometheus.Gatherer
	Network  string
	Checks   []HealthCheck
	// RateLimit, when set, runs after client metadata is known.
	RateLimit func(http.Handler) http.Handler
	// TrustedProxies may set the client IP through forwarding headers.
	TrustedProxies []netip.Prefix
}

// NewRouter wires the middleware chain and mounts modules under it.
func NewRouter(cfg Config, modules ...Module) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.TrustedClientMetadata(cfg.TrustedProxies))
	r.Use(request.Logger(cfg.Logger))
	if cfg.Latency != nil {
		r.Use(request.Latency(cfg.Latency))
	}
	r.Use(request.Timeout(requestTimeout))
	r.Use(request.ContentTypeJSON)
	if cfg.RateLimit != nil {
		r.Use(cfg.RateLimit)
	}

	r.Get("/health", healthHandler(cfg))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

type healthResponse struct {
	Status  string            `json:"status"`
	Network string            `json:"network"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// healthHandler reports 503 when any dependency check fails.
func healthHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Network: cfg.Network}
		status := http.StatusOK
		if len(cfg.Checks) > 0 {
			resp.Checks = make(map[string]string, len(cfg.Checks))
		}
		for _, c := range cfg.Checks {
			if err := c.Check(ctx); err != nil {
				cfg.Logger.WarnContext(ctx, "health check failed",
					"check", c.Name,
					"error", err.Error(),
					"request_id", request.GetRequestID(ctx),
				)
				resp.Checks[c.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
