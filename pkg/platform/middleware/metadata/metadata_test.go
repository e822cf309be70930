package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"baseid/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"trusted proxy forwards client", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.2:1234", "203.0.113.7"},
		{"spoofed hop before trusted chain is skipped", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"all hops trusted takes first", map[string]string{"X-Forwarded-For": "10.0.0.5, 10.0.0.1"}, "10.0.0.2:1234", "10.0.0.5"},
		{"real ip from trusted proxy", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:1234", "198.51.100.4"},
		{"untrusted peer forwarding is ignored", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.1:5555", "192.0.2.1"},
		{"untrusted peer real ip is ignored", map[string]string{"X-Real-IP": "198.51.100.4"}, "192.0.2.1:5555", "192.0.2.1"},
		{"remote addr ipv6", nil, "[::1]:5555", "::1"},
		{"no address", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req, trusted))
		})
	}

	t.Run("no trusted proxies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		assert.Equal(t, "10.0.0.2", ClientIPFromRequest(req, nil))
	})
}

func TestClientMetadataMiddleware(t *testing.T) {
	var gotIP, gotUA string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:80"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	req.Header.Set("User-Agent", "baseid-sdk/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.9", gotIP)
	assert.Equal(t, "baseid-sdk/1.0", gotUA)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, Client{}, Describe(""))

	c := Describe("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Contains(t, c.Browser, "Chrome")
	assert.False(t, c.Bot)

	bot := Describe("Googlebot/2.1 (+http://www.google.com/bot.html)")
	assert.True(t, bot.Bot)
}
