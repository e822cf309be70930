package baseid

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "baseid/pkg/domain-errors"
)

const (
	defaultMaxRetries   = 3
	defaultRetryWait    = 200 * time.Millisecond
	defaultHTTPTimeout  = 30 * time.Second
	tokenRefreshMargin  = 30 * time.Second
	maxErrorBodyBytes   = 64 << 10
	contentTypeJSON     = "application/json"
	authorizationScheme = "Bearer "
)

// IdentityManager is a registry client. It is safe for concurrent use.
type IdentityManager struct {
	cfg        Config
	http       *http.Client
	base       string
	logger     *slog.Logger
	maxRetries uint64
	retryWait  time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*AuthenticationResult
}

func newManager(cfg Config) *IdentityManager {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &IdentityManager{
		cfg:        cfg,
		http:       client,
		base:       strings.TrimRight(cfg.RegistryURL, "/"),
		logger:     slog.Default(),
		maxRetries: defaultMaxRetries,
		retryWait:  defaultRetryWait,
		now:        time.Now,
		sessions:   make(map[string]*AuthenticationResult),
	}
}

// call describes one registry request. Only idempotent calls are retried.
type call struct {
	method     string
	path       string
	body       any
	token      string
	kind       dErrors.Kind
	idempotent bool
}

type errorEnvelope struct {
	Error       string `json:"error"`
	Kind        string `json:"kind"`
	Description string `json:"error_description"`
}

func (m *IdentityManager) do(ctx context.Context, c call, out any) error {
	var payload []byte
	if c.body != nil {
		var err error
		if payload, err = json.Marshal(c.body); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to encode request").In(c.kind)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.retryWait
	retries := m.maxRetries
	if !c.idempotent {
		retries = 0
	}

	return backoff.RetryNotify(func() error {
		err := m.roundTrip(ctx, c, payload, out)
		if err != nil && !IsUnavailable(err) {
			return backoff.Permanent(err)
		}
		return err
	},
		backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx),
		func(err error, wait time.Duration) {
			m.logger.DebugContext(ctx, "retrying registry request",
				"method", c.method,
				"path", c.path,
				"wait", wait,
				"error", err,
			)
		},
	)
}

func (m *IdentityManager) roundTrip(ctx context.Context, c call, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, m.base+c.path, body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to build request").In(c.kind)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if c.token != "" {
		req.Header.Set("Authorization", authorizationScheme+c.token)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "registry request cancelled").In(c.kind)
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "registry unreachable").In(c.kind)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp, c.kind)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "malformed registry response").In(c.kind)
	}
	return nil
}

// decodeError rebuilds the registry's coded error. Responses that do not
// carry an envelope, such as those of a proxy, are classified by status.
func decodeError(resp *http.Response, kind dErrors.Kind) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var env errorEnvelope
	_ = json.Unmarshal(raw, &env)

	code := dErrors.Code(env.Error)
	if code == "" {
		code = codeForStatus(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusGatewayTimeout {
		code = dErrors.CodeUnavailable
	}
	if env.Kind != "" {
		kind = dErrors.Kind(env.Kind)
	} else if resp.StatusCode == http.StatusUnauthorized {
		kind = dErrors.KindAuthentication
	}
	msg := env.Description
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return dErrors.New(code, msg).In(kind)
}

func codeForStatus(status int) dErrors.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return dErrors.CodeBadRequest
	case http.StatusUnauthorized:
		return dErrors.CodeUnauthorized
	case http.StatusForbidden:
		return dErrors.CodeForbidden
	case http.StatusNotFound:
		return dErrors.CodeNotFound
	case http.StatusConflict:
		return dErrors.CodeConflict
	case http.StatusTooManyRequests:
		return dErrors.CodeRateLimited
	case http.StatusRequestEntityTooLarge:
		return dErrors.CodePayloadTooLarge
	case http.StatusServiceUnavailable:
		return dErrors.CodeUnavailable
	default:
		return dErrors.CodeInternal
	}
}

// authorized runs c with a session token for key. A rejected cached token is
// replaced once.
func (m *IdentityManager) authorized(ctx context.Context, key *KeyPair, c call, out any) error {
	token, cached, err := m.token(ctx, key)
	if err != nil {
		return err
	}
	c.token = token
	err = m.do(ctx, c, out)
	if err == nil || !cached || !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		return err
	}
	m.forget(key.DID())
	if token, _, err = m.token(ctx, key); err != nil {
		return err
	}
	c.token = token
	return m.do(ctx, c, out)
}

func (m *IdentityManager) token(ctx context.Context, key *KeyPair) (token string, cached bool, err error) {
	if key == nil {
		return "", false, authErr(dErrors.New(dErrors.CodeInvalidInput, "key is required"))
	}
	m.mu.Lock()
	session, ok := m.sessions[key.DID()]
	m.mu.Unlock()
	if ok && m.now().Add(tokenRefreshMargin).Before(session.ExpiresAt) {
		return session.Token, true, nil
	}
	result, err := m.Authenticate(ctx, key)
	if err != nil {
		return "", false, err
	}
	return result.Token, false, nil
}

func (m *IdentityManager) remember(result *AuthenticationResult) {
	session := *result
	if limit := m.now().Add(m.cfg.AuthenticationTTL); session.ExpiresAt.After(limit) {
		session.ExpiresAt = limit
	}
	m.mu.Lock()
	m.sessions[result.DID] = &session
	m.mu.Unlock()
}

func (m *IdentityManager) forget(did string) {
	m.mu.Lock()
	delete(m.sessions, did)
	m.mu.Unlock()
}
