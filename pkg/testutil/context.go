package testutil

import (
	"net/http"

	"baseid/pkg/requestcontext"
)

// WithDID marks the request as authenticated by did, as the auth middleware
// would after validating a session token.
func WithDID(req *http.Request, did string) *http.Request {
	return req.WithContext(requestcontext.WithDID(req.Context(), did))
}

// WithAuth sets both the authenticated DID and the token jti.
func WithAuth(req *http.Request, did, jti string) *http.Request {
	ctx := requestcontext.WithDID(req.Context(), did)
	ctx = requestcontext.WithTokenID(ctx, jti)
	return req.WithContext(ctx)
}
