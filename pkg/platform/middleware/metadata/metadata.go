package metadata

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"baseid/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and stores them in the context. Proxy headers are ignored; use
// TrustedClientMetadata behind a load balancer. Apply it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return TrustedClientMetadata(nil)(next)
}

// TrustedClientMetadata is ClientMetadata honouring X-Forwarded-For and
// X-Real-IP when the peer address is inside one of trusted.
func TrustedClientMetadata(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r, trusted), r.Header.Get("User-Agent"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromRequest extracts the originating client IP. Forwarding headers
// count only when sent by a trusted proxy; the X-Forwarded-For chain is read
// right to left and the first hop outside trusted wins.
func ClientIPFromRequest(r *http.Request, trusted []netip.Prefix) string {
	peer := remoteHost(r.RemoteAddr)
	if !isTrusted(peer, trusted) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !isTrusted(hop, trusted) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func remoteHost(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Client is a parsed User-Agent summary attached to audit events.
type Client struct {
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Mobile  bool   `json:"mobile,omitempty"`
	Bot     bool   `json:"bot,omitempty"`
}

// Describe parses ua. SDK callers send a bare product token and come back
// with only Browser set.
func Describe(ua string) Client {
	if ua == "" {
		return Client{}
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	browser := name
	if version != "" {
		browser = name + "/" + version
	}
	return Client{
		Browser: browser,
		OS:      parsed.OS(),
		Mobile:  parsed.Mobile(),
		Bot:     parsed.Bot(),
	}
}

// FromContext describes the User-Agent recorded on ctx.
func FromContext(ctx context.Context) Client {
	return Describe(requestcontext.UserAgent(ctx))
}
