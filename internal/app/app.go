// Package app builds the registry from configuration. Every backing service
// is optional: without a DATABASE_URL, REDIS_URL, MEMCACHE_ADDR,
// KAFKA_BROKERS or BASEID_RPC_URL the matching component runs in memory.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	authhandler "baseid/internal/auth/handler"
	authmetrics "baseid/internal/auth/metrics"
	authservice "baseid/internal/auth/service"
	challengestore "baseid/internal/auth/store/challenge"
	trlstore "baseid/internal/auth/store/revocation"
	credhandler "baseid/internal/credential/handler"
	credmetrics "baseid/internal/credential/metrics"
	credservice "baseid/internal/credential/service"
	credstore "baseid/internal/credential/store"
	didhandler "baseid/internal/did/handler"
	didmetrics "baseid/internal/did/metrics"
	"baseid/internal/did/resolver"
	didservice "baseid/internal/did/service"
	didstore "baseid/internal/did/store"
	httpapi "baseid/internal/http"
	jwttoken "baseid/internal/jwt_token"
	"baseid/internal/ledger"
	"baseid/internal/platform/config"
	"baseid/internal/platform/kafka"
	platformmetrics "baseid/internal/platform/metrics"
	"baseid/internal/platform/postgres"
	"baseid/internal/platform/redis"
	preshandler "baseid/internal/presentation/handler"
	presmetrics "baseid/internal/presentation/metrics"
	presservice "baseid/internal/presentation/service"
	privacyhandler "baseid/internal/privacy/handler"
	privacymetrics "baseid/internal/privacy/metrics"
	privacyservice "baseid/internal/privacy/service"
	privacystore "baseid/internal/privacy/store"
	ratelimitmetrics "baseid/internal/ratelimit/metrics"
	ratelimit "baseid/internal/ratelimit/middleware"
	"baseid/internal/ratelimit/store/bucket"
	"baseid/internal/revocation"
	revocationhandler "baseid/internal/revocation/handler"
	revstore "baseid/internal/revocation/store"
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/platform/audit/publisher"
	auditmemory "baseid/pkg/platform/audit/store/memory"
	auditpostgres "baseid/pkg/platform/audit/store/postgres"
	"baseid/pkg/platform/audit/worker"
	"baseid/pkg/platform/circuit"
	"baseid/pkg/platform/middleware/admin"
	authmw "baseid/pkg/platform/middleware/auth"
)

const (
	resolutionCacheTTL = time.Minute
	auditBufferSize    = 1024
	cleanupInterval    = time.Minute
	tokenAudience      = "baseid-registry"
)

// App is a wired registry.
type App struct {
	Handler   http.Handler
	IssuerDID string

	cfg       config.Server
	logger    *slog.Logger
	db        *sql.DB
	redis     *redis.Client
	producer  *kafka.Producer
	rpc       *ledger.RPC
	publisher *publisher.Publisher
	relay     *worker.Relay
	cleanups  []func(ctx context.Context) error
}

// New connects the configured backends and wires every module. reg receives
// the registry's metrics.
func New(ctx context.Context, cfg config.Server, logger *slog.Logger, reg *prometheus.Registry) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.connect(ctx); err != nil {
		return nil, err
	}

	l := a.ledger(ctx, reg)
	auditStore, trail := a.auditStore()
	a.publisher = publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(logger),
	)

	dids := didservice.New(a.didStore(), l,
		didservice.WithLogger(logger),
		didservice.WithAuditPublisher(a.publisher),
		didservice.WithMetrics(didmetrics.New(reg)),
		didservice.WithCache(a.resolutionCache()),
	)

	registry := revocation.NewRegistry(a.revocationStore(),
		revocation.WithLedger(l),
		revocation.WithLogger(logger),
		revocation.WithMetrics(revocation.NewMetrics(reg)),
	)

	issuer, err := a.issuerKey()
	if err != nil {
		return nil, err
	}
	credentials, err := credservice.New(a.credentialStore(), dids, registry, l,
		credservice.Config{
			CredentialTTL: cfg.CredentialTTL,
			EnablePrivacy: cfg.Features.EnablePrivacy,
			RegistryURL:   cfg.PublicURL,
		},
		credservice.WithLogger(logger),
		credservice.WithAuditPublisher(a.publisher),
		credservice.WithMetrics(credmetrics.New(reg)),
		credservice.WithIssuerKey(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("credential service: %w", err)
	}
	if err := registerIssuer(ctx, dids, issuer); err != nil {
		return nil, err
	}
	a.IssuerDID = issuer.DID()

	jwt := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.PublicURL, tokenAudience)
	challenges, trl := a.authStores()
	auth, err := authservice.New(challenges, trl, jwt, dids,
		authservice.Config{ChallengeTTL: cfg.ChallengeTTL, TokenTTL: cfg.AuthenticationTTL},
		authservice.WithLogger(logger),
		authservice.WithAuditPublisher(a.publisher),
		authservice.WithMetrics(authmetrics.New(reg)),
	)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	privacy := privacyservice.New(a.privacyStore(), dids,
		privacyservice.Config{
			EnablePrivacy:  cfg.Features.EnablePrivacy,
			EnableZKProofs: cfg.Features.EnableZKProofs,
			ProofMaxAge:    cfg.ChallengeTTL,
		},
		privacyservice.WithLogger(logger),
		privacyservice.WithAuditPublisher(a.publisher),
		privacyservice.WithAuditTrail(trail),
		privacyservice.WithMetrics(privacymetrics.New(reg)),
	)

	presentations := presservice.New(credentials, dids,
		presservice.Config{MaxProofAge: cfg.ChallengeTTL},
		presservice.WithLogger(logger),
		presservice.WithAuditPublisher(a.publisher),
		presservice.WithMetrics(presmetrics.New(reg)),
		presservice.WithPrivacySettings(privacy),
	)

	requireAuth := authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwt), auth, logger)
	requireAdmin := admin.RequireAdminToken(cfg.AdminToken, logger)

	httpMetrics := platformmetrics.New(reg)
	httpMetrics.SetNetwork(cfg.Ledger.Network)
	a.Handler = httpapi.NewRouter(httpapi.Config{
		Logger:         logger,
		Latency:        httpMetrics,
		Gatherer:       reg,
		Network:        cfg.Ledger.Network,
		Checks:         a.healthChecks(),
		RateLimit:      a.rateLimiter(reg).Handler,
		TrustedProxies: cfg.TrustedProxies,
	},
		didhandler.New(dids, requireAuth, logger),
		authhandler.New(auth, requireAuth, logger),
		credhandler.New(credentials, requireAuth, requireAdmin, logger),
		revocationhandler.New(registry, logger),
		privacyhandler.New(privacy, requireAuth, logger),
		preshandler.New(presentations, logger),
	)

	ok = true
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	db, err := postgres.Open(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	a.db = db
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}

	if a.redis, err = redis.New(ctx, a.cfg.Redis); err != nil {
		return err
	}

	if a.producer, err = kafka.NewProducer(ctx, a.cfg.Kafka, a.logger); err != nil {
		return err
	}
	if a.producer != nil {
		if err := a.producer.EnsureTopic(ctx, 3, 1); err != nil {
			a.logger.WarnContext(ctx, "could not ensure audit topic", "error", err)
		}
	}

	a.logger.InfoContext(ctx, "backends connected",
		"postgres", a.db != nil,
		"redis", a.redis != nil,
		"memcache", a.cfg.MemcacheAddr != "",
		"kafka", a.producer != nil,
	)
	return nil
}

// ledger dials the RPC endpoint when configured. A failed dial is not fatal:
// anchors come from the in-memory ledger until restart.
func (a *App) ledger(ctx context.Context, reg prometheus.Registerer) ledger.Ledger {
	network := a.cfg.Ledger.Network
	if a.cfg.Ledger.RPCURL == "" {
		return ledger.NewMemory(network)
	}
	rpc, err := ledger.Dial(ctx, network, a.cfg.Ledger.RPCURL, a.logger,
		ledger.WithBreaker(circuit.New("ledger-rpc", circuit.WithFailureThreshold(3))),
		ledger.WithMetrics(ledger.NewMetrics(reg)),
	)
	if err != nil {
		a.logger.WarnContext(ctx, "ledger rpc unavailable, anchoring in memory",
			"network", network,
			"error", err,
		)
		return ledger.NewMemory(network)
	}
	a.rpc = rpc
	return rpc
}

// auditStore returns the outbox-backed store with postgres, and an in-memory
// store otherwise. The second value serves audit trail reads.
func (a *App) auditStore() (audit.Store, privacyservice.AuditTrail) {
	if a.db == nil {
		s := auditmemory.NewInMemoryStore()
		return s, s
	}
	s := auditpostgres.New(a.db)
	if a.producer != nil {
		a.relay = worker.NewRelay(s, a.producer, func(ctx context.Context, fn func(ctx context.Context) error) error {
			return postgres.RunInTx(ctx, a.db, fn)
		}, a.logger)
	}
	return s, s
}

func (a *App) didStore() didservice.Store {
	if a.db != nil {
		return didstore.NewPostgres(a.db)
	}
	return didstore.NewInMemory()
}

func (a *App) credentialStore() credservice.Store {
	if a.db != nil {
		return credstore.NewPostgres(a.db)
	}
	return credstore.NewInMemory()
}

func (a *App) privacyStore() privacyservice.Store {
	if a.db != nil {
		return privacystore.NewPostgres(a.db)
	}
	return privacystore.NewInMemory()
}

// revocationStore prefers redis so every instance sees the same entries
// without a database round trip.
func (a *App) revocationStore() revocation.Store {
	switch {
	case a.redis != nil:
		return revstore.NewRedis(a.redis.Client)
	case a.db != nil:
		return revstore.NewPostgres(a.db)
	default:
		return revstore.NewInMemory()
	}
}

func (a *App) authStores() (authservice.ChallengeStore, authservice.TokenRevocationList) {
	if a.redis != nil {
		return challengestore.NewRedis(a.redis.Client), trlstore.NewRedisTRL(a.redis.Client)
	}
	challenges := challengestore.NewInMemory()
	a.cleanups = append(a.cleanups, func(ctx context.Context) error {
		_, err := challenges.DeleteExpired(ctx, time.Now())
		return err
	})
	if a.db != nil {
		trl := trlstore.NewPostgresTRL(a.db)
		a.cleanups = append(a.cleanups, func(ctx context.Context) error {
			_, err := trl.PurgeExpired(ctx)
			return err
		})
		return challenges, trl
	}
	return challenges, trlstore.NewInMemoryTRL()
}

// rateLimiter shares budgets through redis when it is configured.
func (a *App) rateLimiter(reg prometheus.Registerer) *ratelimit.Middleware {
	var store ratelimit.BucketStore
	if a.redis != nil {
		store = bucket.NewRedis(a.redis.Client)
	} else {
		mem := bucket.NewInMemoryBucketStore()
		a.cleanups = append(a.cleanups, mem.Prune)
		store = mem
	}
	return ratelimit.New(store, a.logger,
		ratelimit.WithDisabled(a.cfg.RateLimitDisabled),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
	)
}

func (a *App) resolutionCache() *resolver.Cache {
	opts := []resolver.Option{resolver.WithLogger(a.logger)}
	if addrs := splitAddrs(a.cfg.MemcacheAddr); len(addrs) > 0 {
		mc := memcache.New(addrs...)
		mc.Timeout = 200 * time.Millisecond
		opts = append(opts, resolver.WithRemote(mc))
	}
	return resolver.New(resolutionCacheTTL, opts...)
}

// issuerKey loads the registry's issuing key. Outside production an
// ephemeral key is generated when none is configured.
func (a *App) issuerKey() (*didkey.KeyPair, error) {
	if a.cfg.IssuerPrivateKey != "" {
		kp, err := didkey.FromHex(a.cfg.IssuerPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse ISSUER_PRIVATE_KEY: %w", err)
		}
		return kp, nil
	}
	if a.cfg.IsProduction() {
		return nil, errors.New("ISSUER_PRIVATE_KEY must be set in production")
	}
	kp, err := didkey.Generate()
	if err != nil {
		return nil, err
	}
	a.logger.Warn("using an ephemeral issuer key; credentials issued by this process cannot be re-signed after restart",
		"issuer", kp.DID(),
	)
	return kp, nil
}

// registerIssuer makes sure the issuer's DID document exists.
func registerIssuer(ctx context.Context, dids *didservice.Service, kp *didkey.KeyPair) error {
	proof, err := kp.Sign(didkey.RegistrationDigest(kp.DID()))
	if err != nil {
		return err
	}
	_, err = dids.Register(ctx, didservice.RegisterRequest{PublicKey: kp.PublicKeyHex(), Proof: proof})
	if err != nil && !dErrors.HasCode(err, dErrors.CodeConflict) {
		return fmt.Errorf("register issuer did: %w", err)
	}
	return nil
}

func (a *App) healthChecks() []httpapi.HealthCheck {
	var checks []httpapi.HealthCheck
	if a.db != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "postgres", Check: a.db.PingContext})
	}
	if a.redis != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "redis", Check: a.redis.Health})
	}
	if a.producer != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "kafka", Check: a.producer.Health})
	}
	if a.rpc != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "ledger", Check: a.rpc.Health})
	}
	return checks
}

// Run drives background work until ctx is cancelled: the audit outbox relay
// and periodic purges of expired challenges and token revocations.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(ctx)
		})
	}
	if len(a.cleanups) > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for _, cleanup := range a.cleanups {
						if err := cleanup(ctx); err != nil {
							a.logger.WarnContext(ctx, "cleanup failed", "error", err)
						}
					}
				}
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close flushes pending audit events and releases connections.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.rpc != nil {
		a.rpc.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func splitAddrs(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
