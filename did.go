package baseid

import (
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
)

// KeyPair is a secp256k1 key controlling a did:base identifier.
type KeyPair = didkey.KeyPair

// GenerateKey returns a fresh key pair.
func GenerateKey() (*KeyPair, error) {
	kp, err := didkey.Generate()
	if err != nil {
		return nil, identityErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate key"))
	}
	return kp, nil
}

// KeyFromHex loads a key pair from a hex encoded private key.
func KeyFromHex(privateKeyHex string) (*KeyPair, error) {
	kp, err := didkey.FromHex(privateKeyHex)
	if err != nil {
		return nil, identityErr(dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid private key"))
	}
	return kp, nil
}

// IsValidDID reports whether did is a syntactically valid did:base
// identifier.
func IsValidDID(did string) bool {
	return didkey.IsValid(did)
}

// GenerateDID derives the did:base identifier of a compressed or
// uncompressed secp256k1 public key.
func GenerateDID(publicKey []byte) (string, error) {
	did, err := didkey.FromPublicKeyBytes(publicKey)
	if err != nil {
		return "", identityErr(dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid public key"))
	}
	return did, nil
}
