package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"baseid/internal/app"
	"baseid/internal/platform/config"
	"baseid/internal/platform/httpserver"
	"baseid/internal/platform/logger"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// main loads configuration, wires the registry and serves it until SIGINT or
// SIGTERM. Business logic lives in the internal module packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.New("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	registry, err := app.New(startCtx, cfg, log, reg)
	cancelStart()
	if err != nil {
		log.Error("failed to start registry", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := registry.Run(ctx); err != nil {
			log.Error("background worker stopped", "error", err)
		}
	}()

	srv := httpserver.New(cfg.Addr, registry.Handler)
	go func() {
		log.Info("starting baseid registry",
			"addr", cfg.Addr,
			"network", cfg.Ledger.Network,
			"issuer", registry.IssuerDID,
			"privacy", cfg.Features.EnablePrivacy,
			"zk_proofs", cfg.Features.EnableZKProofs,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
