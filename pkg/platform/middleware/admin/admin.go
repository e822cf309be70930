// Package admin guards the operator routes (credential issuance by the
// registry's own issuer key).
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/platform/httputil"
	request "baseid/pkg/platform/middleware/request"
)

const Header = "X-Admin-Token"

// RequireAdminToken compares the X-Admin-Token header with expected in
// constant time. With no expected token configured every request is refused.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(Header)
			if expected != "" && token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			reason := "admin token mismatch"
			switch {
			case expected == "":
				reason = "admin routes disabled"
			case token == "":
				reason = "admin token missing"
			}
			logger.WarnContext(ctx, reason,
				"request_id", request.GetRequestID(ctx),
				"path", r.URL.Path,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required").In(dErrors.KindAuthentication))
		})
	}
}
