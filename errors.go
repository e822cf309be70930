package baseid

import (
	dErrors "baseid/pkg/domain-errors"
)

// Error is the error type returned by the SDK. Code is a stable identifier
// such as "not_found" or "invalid_signature"; Kind names the component that
// raised it.
type Error = dErrors.Error

// IsIdentityError reports whether err was raised by DID creation, resolution
// or document management.
func IsIdentityError(err error) bool {
	return dErrors.HasKind(err, dErrors.KindIdentity)
}

// IsAuthenticationError reports whether err was raised while authenticating
// a DID or validating its session.
func IsAuthenticationError(err error) bool {
	return dErrors.HasKind(err, dErrors.KindAuthentication)
}

func IsCredentialError(err error) bool {
	return dErrors.HasKind(err, dErrors.KindCredential)
}

func IsPrivacyError(err error) bool {
	return dErrors.HasKind(err, dErrors.KindPrivacy)
}

// IsNotFound reports whether the registry has no such DID or credential.
func IsNotFound(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeNotFound)
}

// IsUnavailable reports whether the registry or one of its backends could not
// be reached. Such failures are safe to retry.
func IsUnavailable(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeUnavailable)
}

// IsRateLimited reports whether the registry throttled the caller.
func IsRateLimited(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeRateLimited)
}

func identityErr(err *dErrors.Error) *dErrors.Error   { return err.In(dErrors.KindIdentity) }
func authErr(err *dErrors.Error) *dErrors.Error       { return err.In(dErrors.KindAuthentication) }
func credentialErr(err *dErrors.Error) *dErrors.Error { return err.In(dErrors.KindCredential) }
func privacyErr(err *dErrors.Error) *dErrors.Error    { return err.In(dErrors.KindPrivacy) }
