// Package models holds rate limit classes and results.
package models

import (
	"net/http"
	"strings"
	"time"
)

// EndpointClass groups routes that share a per-IP budget.
type EndpointClass string

const (
	// ClassRegistration covers DID registration, which anchors to the ledger.
	ClassRegistration EndpointClass = "registration"
	// ClassAuth covers challenge issuance and token exchange.
	ClassAuth EndpointClass = "auth"
	// ClassVerify covers the public verification endpoints.
	ClassVerify EndpointClass = "verify"
)

// Limit is a sliding-window budget.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits apply per client IP.
var DefaultLimits = map[EndpointClass]Limit{
	ClassRegistration: {Requests: 10, Window: time.Minute},
	ClassAuth:         {Requests: 30, Window: time.Minute},
	ClassVerify:       {Requests: 120, Window: time.Minute},
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in whole seconds; zero when Allowed.
	RetryAfter int
}

const keyPrefix = "baseid:ratelimit:"

// Key names the bucket of ip for class.
func Key(class EndpointClass, ip string) string {
	return keyPrefix + string(class) + ":" + ip
}

// Classify maps an unauthenticated write to its class. Reads and
// authenticated management routes are not limited.
func Classify(method, path string) (EndpointClass, bool) {
	if method != http.MethodPost {
		return "", false
	}
	switch {
	case path == "/dids":
		return ClassRegistration, true
	case path == "/auth/challenge", path == "/auth/token":
		return ClassAuth, true
	case strings.HasSuffix(path, "/verify"):
		return ClassVerify, true
	}
	return "", false
}
