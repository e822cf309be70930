package models

import (
	"crypto/ecdsa"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"baseid/internal/ledger"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/didkey"
)

const (
	ContextDIDv1     = "https://www.w3.org/ns/did/v1"
	ContextSecp256k1 = "https://w3id.org/security/suites/secp256k1-2019/v1"

	// ControllerFragment identifies the key a DID was derived from.
	ControllerFragment = "#controller"
)

// VerificationMethod is a public key bound to a DID.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// Address is the Ethereum address of the method's key.
func (v VerificationMethod) Address() (common.Address, error) {
	key, err := didkey.DecodeMultibase(v.PublicKeyMultibase)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*key), nil
}

// Service is a service endpoint advertised by the DID subject.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// Document is a DID document.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	Controller         string               `json:"controller"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
	Service            []Service            `json:"service,omitempty"`
	Created            time.Time            `json:"created"`
	Updated            time.Time            `json:"updated"`
	Deactivated        bool                 `json:"deactivated,omitempty"`
	VersionID          int                  `json:"versionId"`
}

// NewDocument builds the initial document for the DID derived from key. The
// derivation key becomes the controller method and may never be removed.
func NewDocument(key *ecdsa.PublicKey, now time.Time) (*Document, error) {
	did := didkey.FromPublicKey(key)
	mb, err := didkey.EncodeMultibase(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "encode public key").In(dErrors.KindIdentity)
	}
	vmID := did + ControllerFragment
	return &Document{
		Context:    []string{ContextDIDv1, ContextSecp256k1},
		ID:         did,
		Controller: did,
		VerificationMethod: []VerificationMethod{{
			ID:                 vmID,
			Type:               didkey.VerificationKeyType,
			Controller:         did,
			PublicKeyMultibase: mb,
		}},
		Authentication:  []string{vmID},
		AssertionMethod: []string{vmID},
		Created:         now,
		Updated:         now,
		VersionID:       1,
	}, nil
}

// FindVerificationMethod looks a method up by its full or fragment ID.
func (d *Document) FindVerificationMethod(id string) (VerificationMethod, bool) {
	for _, vm := range d.VerificationMethod {
		if vm.ID == id || d.ID+id == vm.ID {
			return vm, true
		}
	}
	return VerificationMethod{}, false
}

// ControlsAddress reports whether addr belongs to a key listed under
// authentication.
func (d *Document) ControlsAddress(addr common.Address) bool {
	for _, ref := range d.Authentication {
		vm, ok := d.FindVerificationMethod(ref)
		if !ok {
			continue
		}
		got, err := vm.Address()
		if err == nil && got == addr {
			return true
		}
	}
	return false
}

// AssertsAddress reports whether addr belongs to a key listed under
// assertionMethod, i.e. may sign credentials for this DID.
func (d *Document) AssertsAddress(addr common.Address) bool {
	for _, ref := range d.AssertionMethod {
		vm, ok := d.FindVerificationMethod(ref)
		if !ok {
			continue
		}
		got, err := vm.Address()
		if err == nil && got == addr {
			return true
		}
	}
	return false
}

// ResolutionMetadata accompanies a resolved document.
type ResolutionMetadata struct {
	Created     time.Time      `json:"created"`
	Updated     time.Time      `json:"updated"`
	VersionID   int            `json:"versionId"`
	Deactivated bool           `json:"deactivated"`
	Anchor      *ledger.Anchor `json:"anchor,omitempty"`
}

// Resolution is the result of resolving a DID.
type Resolution struct {
	Document *Document          `json:"didDocument"`
	Metadata ResolutionMetadata `json:"didDocumentMetadata"`
}

// Digest is keccak256 over the JSON encoding of the document, used as the
// ledger anchor payload.
func (d *Document) Digest() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return didkey.Digest(raw), nil
}
