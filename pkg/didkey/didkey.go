// Package didkey derives did:base identifiers from secp256k1 keys and signs
// or recovers registry digests.
//
// A did:base identifier is the Ethereum address of the controlling key in
// lowercase hex: did:base:<last 20 bytes of keccak256(uncompressed pubkey)>.
package didkey

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/multiformats/go-multibase"
)

const (
	// Prefix is the scheme and method every registry identifier starts with.
	Prefix = "did:base:"

	// VerificationKeyType is the verification method type for registry keys.
	VerificationKeyType = "EcdsaSecp256k1VerificationKey2019"

	// SignatureType names the recoverable signature suite used in proofs.
	SignatureType = "EcdsaSecp256k1RecoverySignature2020"

	signatureLength = 65
)

var didPattern = regexp.MustCompile(`^did:base:[a-zA-Z0-9]{32,}$`)

var (
	ErrInvalidPublicKey = errors.New("invalid secp256k1 public key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidDID       = errors.New("invalid did:base identifier")
)

// IsValid reports whether s is a syntactically valid did:base identifier.
func IsValid(s string) bool {
	return didPattern.MatchString(s)
}

// FromPublicKeyBytes derives the DID for a compressed (33 byte) or
// uncompressed (65 byte) secp256k1 public key.
func FromPublicKeyBytes(pub []byte) (string, error) {
	key, err := ParsePublicKey(pub)
	if err != nil {
		return "", err
	}
	return FromPublicKey(key), nil
}

// FromPublicKey derives the DID for key.
func FromPublicKey(key *ecdsa.PublicKey) string {
	return FromAddress(crypto.PubkeyToAddress(*key))
}

// FromAddress formats an Ethereum address as a DID.
func FromAddress(addr common.Address) string {
	return Prefix + hex.EncodeToString(addr.Bytes())
}

// Address extracts the controller address from a DID derived by this package.
func Address(did string) (common.Address, error) {
	if !IsValid(did) {
		return common.Address{}, ErrInvalidDID
	}
	suffix := strings.TrimPrefix(did, Prefix)
	if len(suffix) != 2*common.AddressLength || !isHex(suffix) {
		return common.Address{}, fmt.Errorf("%w: not an address-derived identifier", ErrInvalidDID)
	}
	return common.HexToAddress(suffix), nil
}

// ParsePublicKey accepts compressed or uncompressed secp256k1 encodings.
func ParsePublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	switch len(pub) {
	case 33:
		key, err := crypto.DecompressPubkey(pub)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return key, nil
	case 65:
		key, err := crypto.UnmarshalPubkey(pub)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidPublicKey, len(pub))
	}
}

// ParsePublicKeyHex is ParsePublicKey for a hex string with optional 0x prefix.
func ParsePublicKeyHex(s string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return ParsePublicKey(raw)
}

// EncodeMultibase renders key as base58btc multibase of its compressed form.
func EncodeMultibase(key *ecdsa.PublicKey) (string, error) {
	return multibase.Encode(multibase.Base58BTC, crypto.CompressPubkey(key))
}

// DecodeMultibase parses a publicKeyMultibase value.
func DecodeMultibase(s string) (*ecdsa.PublicKey, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return ParsePublicKey(data)
}

// Digest is keccak256 over the concatenated parts.
func Digest(parts ...[]byte) []byte {
	return crypto.Keccak256(parts...)
}

// RegistrationDigest is the proof-of-possession message for registering did.
func RegistrationDigest(did string) []byte {
	return Digest([]byte("baseid:register:" + did))
}

// AuthenticationDigest is the challenge-response message for did and nonce.
func AuthenticationDigest(did, nonce string) []byte {
	return Digest([]byte("baseid:auth:" + did + ":" + nonce))
}

// Recover returns the address that produced sig over digest. Both the raw
// 0/1 recovery id and the 27/28 wallet convention are accepted.
func Recover(digest []byte, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("%w: unexpected length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverHex is Recover for a hex signature with optional 0x prefix.
func RecoverHex(digest []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return Recover(digest, sig)
}

// VerifyDID reports whether sigHex over digest was produced by the key that
// did was derived from.
func VerifyDID(did string, digest []byte, sigHex string) error {
	want, err := Address(did)
	if err != nil {
		return err
	}
	got, err := RecoverHex(digest, sigHex)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: signer %s does not control %s", ErrInvalidSignature, got.Hex(), did)
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
