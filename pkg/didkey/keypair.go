package didkey

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyPair is a secp256k1 signing key together with its derived DID.
type KeyPair struct {
	private *ecdsa.PrivateKey
	did     string
}

// Generate creates a fresh random key pair.
func Generate() (*KeyPair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return fromPrivate(priv), nil
}

// FromHex loads a key pair from a hex-encoded private key (0x prefix optional).
func FromHex(s string) (*KeyPair, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return fromPrivate(priv), nil
}

func fromPrivate(priv *ecdsa.PrivateKey) *KeyPair {
	return &KeyPair{private: priv, did: FromPublicKey(&priv.PublicKey)}
}

func (k *KeyPair) DID() string {
	return k.did
}

func (k *KeyPair) PublicKey() *ecdsa.PublicKey {
	return &k.private.PublicKey
}

// PublicKeyHex is the compressed public key in hex.
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(crypto.CompressPubkey(&k.private.PublicKey))
}

// PrivateKeyHex exports the private key. Callers own its storage.
func (k *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(k.private))
}

// VerificationMethodID is the fragment-qualified ID of the primary key.
func (k *KeyPair) VerificationMethodID() string {
	return k.did + "#controller"
}

// Sign produces a 65 byte recoverable signature over a 32 byte digest, hex encoded.
func (k *KeyPair) Sign(digest []byte) (string, error) {
	sig, err := crypto.Sign(digest, k.private)
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	return hex.EncodeToString(sig), nil
}
