// Package revocation is the credential revocation registry.
//
// The registry never stores credential IDs. Each revoked credential is
// recorded as keccak256(issuerDID || "|" || credentialID) under its issuer, so
// the published list only lets a party that already holds a credential check
// whether that credential was revoked.
package revocation

import (
	"encoding/hex"

	"baseid/pkg/didkey"
)

// Entry is the registry entry for a credential.
func Entry(issuer, credentialID string) string {
	return hex.EncodeToString(didkey.Digest([]byte(issuer + "|" + credentialID)))
}
