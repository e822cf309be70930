// Package baseid is the client SDK for a did:base registry.
//
// An IdentityManager talks to the registry over HTTP. Keys never leave the
// caller: DID registration, authentication, credential issuance and
// presentations are signed locally and only the signatures are sent.
package baseid

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"dario.cat/mergo"

	"baseid/internal/platform/config"
	dErrors "baseid/pkg/domain-errors"
)

// Config configures an IdentityManager. Zero fields passed to NewIdentity
// keep their DefaultConfig value.
type Config struct {
	// Network names the chain the registry anchors to, for example
	// "base-mainnet" or "base-sepolia".
	Network         string
	RPCURL          string
	RegistryAddress string
	EnablePrivacy   bool
	EnableZKProofs  bool
	// CredentialTTL is the lifetime of credentials issued by IssueCredential.
	CredentialTTL time.Duration
	// AuthenticationTTL bounds how long a cached session token is reused.
	AuthenticationTTL time.Duration
	// RegistryURL is the base URL of the registry HTTP API.
	RegistryURL string
	HTTPClient  *http.Client
}

// DefaultConfig returns the mainnet configuration with privacy enabled and
// ZK proofs disabled.
func DefaultConfig() Config {
	return Config{
		Network:           config.DefaultNetwork,
		RPCURL:            config.DefaultRPCURL,
		RegistryAddress:   config.DefaultRegistryAddress,
		EnablePrivacy:     true,
		EnableZKProofs:    false,
		CredentialTTL:     config.DefaultCredentialTTL,
		AuthenticationTTL: config.DefaultAuthenticationTTL,
		RegistryURL:       config.DefaultRegistryURL,
	}
}

// Validate rejects configurations the registry would refuse.
func (c Config) Validate() error {
	switch {
	case c.Network == "":
		return identityErr(dErrors.New(dErrors.CodeValidation, "network is required"))
	case c.CredentialTTL <= 0:
		return credentialErr(dErrors.New(dErrors.CodeValidation, "credential ttl must be positive"))
	case c.AuthenticationTTL <= 0:
		return authErr(dErrors.New(dErrors.CodeValidation, "authentication ttl must be positive"))
	case c.EnableZKProofs && !c.EnablePrivacy:
		return privacyErr(dErrors.New(dErrors.CodeValidation, "zk proofs require privacy to be enabled"))
	}
	u, err := url.Parse(c.RegistryURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return identityErr(dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid registry url %q", c.RegistryURL)))
	}
	return nil
}

// Option adjusts an IdentityManager after the configuration is merged.
type Option func(*IdentityManager)

// WithPrivacyDisabled turns off claim commitments and selective disclosure.
// A boolean override cannot express this since false is the zero value.
func WithPrivacyDisabled() Option {
	return func(m *IdentityManager) {
		m.cfg.EnablePrivacy = false
		m.cfg.EnableZKProofs = false
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *IdentityManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaxRetries bounds how often idempotent requests are retried when the
// registry is unreachable or unavailable.
func WithMaxRetries(n uint64) Option {
	return func(m *IdentityManager) {
		m.maxRetries = n
	}
}

func withClock(now func() time.Time) Option {
	return func(m *IdentityManager) {
		m.now = now
	}
}

// NewIdentity returns an IdentityManager for overrides merged over
// DefaultConfig.
func NewIdentity(overrides Config, opts ...Option) (*IdentityManager, error) {
	cfg := DefaultConfig()
	if err := mergo.Merge(&cfg, overrides, mergo.WithOverride); err != nil {
		return nil, identityErr(dErrors.Wrap(err, dErrors.CodeValidation, "invalid configuration"))
	}
	m := newManager(cfg)
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *IdentityManager) Config() Config {
	return m.cfg
}
