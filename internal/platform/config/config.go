package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults shared by the server and the SDK (baseid.DefaultConfig).
const (
	DefaultNetwork           = "base-mainnet"
	DefaultRPCURL            = "https://mainnet.base.org"
	DefaultRegistryAddress   = "0x0000000000000000000000000000000000000000"
	DefaultRegistryURL       = "http://localhost:8080"
	DefaultCredentialTTL     = 365 * 24 * time.Hour
	DefaultAuthenticationTTL = 24 * time.Hour
	DefaultChallengeTTL      = 5 * time.Minute
	DefaultAuditTopic        = "baseid.audit"

	devJWTSigningKey = "dev-secret-key-change-in-production"
)

// Ledger identifies the chain the registry anchors to.
type Ledger struct {
	Network         string
	RPCURL          string
	RegistryAddress string
}

// Features toggles privacy-related behaviour.
type Features struct {
	EnablePrivacy  bool
	EnableZKProofs bool
}

type Database struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Server captures process level configuration.
type Server struct {
	Addr              string
	PublicURL         string
	Environment       string
	LogLevel          string
	Ledger            Ledger
	Features          Features
	CredentialTTL     time.Duration
	AuthenticationTTL time.Duration
	ChallengeTTL      time.Duration
	Database          Database
	Redis             RedisConfig
	MemcacheAddr      string
	Kafka             Kafka
	JWTSigningKey     string
	IssuerPrivateKey  string
	AdminToken        string
	// RateLimitDisabled turns off per-IP throttling of registration,
	// authentication and verification.
	RateLimitDisabled bool
	// TrustedProxies are the peers whose X-Forwarded-For is believed when
	// deriving the client IP. Empty means forwarding headers are ignored.
	TrustedProxies []netip.Prefix
}

// IsProduction reports whether dev fallbacks must be refused.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:        getEnv("BASEID_ADDR", ":8080"),
		PublicURL:   getEnv("BASEID_PUBLIC_URL", DefaultRegistryURL),
		Environment: getEnv("BASEID_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Ledger: Ledger{
			Network:         getEnv("BASEID_NETWORK", DefaultNetwork),
			RPCURL:          os.Getenv("BASEID_RPC_URL"),
			RegistryAddress: getEnv("BASEID_REGISTRY_ADDRESS", DefaultRegistryAddress),
		},
		Database: Database{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		MemcacheAddr:     os.Getenv("MEMCACHE_ADDR"),
		JWTSigningKey:    getEnv("JWT_SIGNING_KEY", devJWTSigningKey),
		IssuerPrivateKey: os.Getenv("ISSUER_PRIVATE_KEY"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		Kafka: Kafka{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getEnv("AUDIT_TOPIC", DefaultAuditTopic),
		},
	}

	var err error
	if cfg.Features.EnablePrivacy, err = getBool("BASEID_ENABLE_PRIVACY", true); err != nil {
		return Server{}, err
	}
	if cfg.Features.EnableZKProofs, err = getBool("BASEID_ENABLE_ZK_PROOFS", false); err != nil {
		return Server{}, err
	}
	if cfg.RateLimitDisabled, err = getBool("BASEID_RATE_LIMIT_DISABLED", false); err != nil {
		return Server{}, err
	}
	if cfg.TrustedProxies, err = getPrefixes("BASEID_TRUSTED_PROXIES"); err != nil {
		return Server{}, err
	}
	if cfg.CredentialTTL, err = getDuration("BASEID_CREDENTIAL_TTL", DefaultCredentialTTL); err != nil {
		return Server{}, err
	}
	if cfg.AuthenticationTTL, err = getDuration("BASEID_AUTHENTICATION_TTL", DefaultAuthenticationTTL); err != nil {
		return Server{}, err
	}
	if cfg.ChallengeTTL, err = getDuration("BASEID_CHALLENGE_TTL", DefaultChallengeTTL); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would run insecurely or nonsensically.
func (s Server) Validate() error {
	if s.CredentialTTL <= 0 {
		return fmt.Errorf("credential ttl must be positive, got %s", s.CredentialTTL)
	}
	if s.AuthenticationTTL <= 0 {
		return fmt.Errorf("authentication ttl must be positive, got %s", s.AuthenticationTTL)
	}
	if s.ChallengeTTL <= 0 || s.ChallengeTTL > s.AuthenticationTTL {
		return fmt.Errorf("challenge ttl must be positive and not exceed authentication ttl")
	}
	if s.Features.EnableZKProofs && !s.Features.EnablePrivacy {
		return fmt.Errorf("zk proofs require privacy to be enabled")
	}
	if s.IsProduction() {
		if s.JWTSigningKey == devJWTSigningKey {
			return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
		}
		if s.AdminToken == "" {
			return fmt.Errorf("ADMIN_TOKEN must be set in production")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// getPrefixes parses a comma separated list of CIDRs or bare addresses.
func getPrefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range splitList(os.Getenv(key)) {
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", key, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
