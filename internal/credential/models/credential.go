package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"baseid/pkg/didkey"
)

const (
	ContextCredentialsV1 = "https://www.w3.org/2018/credentials/v1"
	ContextSecp256k1     = "https://w3id.org/security/suites/secp256k1-2019/v1"

	TypeVerifiableCredential = "VerifiableCredential"

	// StatusTypeRevocationRegistry names the credentialStatus method served
	// by /revocations/{issuer}.
	StatusTypeRevocationRegistry = "BaseRevocationRegistry2024"

	ProofPurposeAssertion = "assertionMethod"

	idPrefix = "urn:uuid:"
)

// NewID returns a fresh urn:uuid credential identifier.
func NewID() string {
	return idPrefix + uuid.NewString()
}

// ValidID reports whether id is a urn:uuid identifier.
func ValidID(id string) bool {
	if !strings.HasPrefix(id, idPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, idPrefix))
	return err == nil
}

// Claims are the subject attributes a credential asserts.
type Claims map[string]any

// CredentialSubject is the subject DID plus its claims, serialised flat as
// {"id": ..., "<claim>": ...}.
type CredentialSubject struct {
	ID     string
	Claims Claims
}

func (s CredentialSubject) MarshalJSON() ([]byte, error) {
	claims, err := CanonicalClaims(s.Claims)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		out[k] = v
	}
	out["id"] = s.ID
	return json.Marshal(out)
}

// UnmarshalJSON keeps numbers as json.Number so re-encoding reproduces the
// signed bytes.
func (s *CredentialSubject) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	id, _ := raw["id"].(string)
	delete(raw, "id")
	s.ID = id
	s.Claims = raw
	return nil
}

type CredentialStatus struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Proof is a recoverable secp256k1 signature by the issuer over the
// credential's signing input.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofPurpose       string    `json:"proofPurpose"`
	ProofValue         string    `json:"proofValue"`
	// DisclosureDigests holds one salted commitment per claim. When set, the
	// signature covers the digests instead of the claim values.
	DisclosureDigests map[string]string `json:"disclosureDigests,omitempty"`
}

// VerifiableCredential follows the W3C VC data model v1.
type VerifiableCredential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      time.Time         `json:"issuanceDate"`
	ExpirationDate    *time.Time        `json:"expirationDate,omitempty"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	CredentialStatus  *CredentialStatus `json:"credentialStatus,omitempty"`
	Proof             *Proof            `json:"proof,omitempty"`
	// Disclosures maps disclosed claim names to their salts. Only the holder
	// has them; they are not part of the signed input.
	Disclosures map[string]string `json:"disclosures,omitempty"`
}

// signingInput is the structure hashed for the issuer signature.
type signingInput struct {
	Context            []string          `json:"@context"`
	ID                 string            `json:"id"`
	Type               []string          `json:"type"`
	Issuer             string            `json:"issuer"`
	IssuanceDate       time.Time         `json:"issuanceDate"`
	ExpirationDate     *time.Time        `json:"expirationDate,omitempty"`
	SubjectID          string            `json:"subjectId"`
	Claims             Claims            `json:"claims,omitempty"`
	DisclosureDigests  map[string]string `json:"disclosureDigests,omitempty"`
	CredentialStatus   *CredentialStatus `json:"credentialStatus,omitempty"`
	ProofType          string            `json:"proofType"`
	ProofCreated       time.Time         `json:"proofCreated"`
	VerificationMethod string            `json:"verificationMethod"`
	ProofPurpose       string            `json:"proofPurpose"`
}

// SigningDigest is keccak256 over the JSON signing input. Proof metadata is
// covered; ProofValue and Disclosures are not.
func (vc *VerifiableCredential) SigningDigest() ([]byte, error) {
	if vc.Proof == nil {
		return nil, fmt.Errorf("credential has no proof")
	}
	in := signingInput{
		Context:            vc.Context,
		ID:                 vc.ID,
		Type:               vc.Type,
		Issuer:             vc.Issuer,
		IssuanceDate:       vc.IssuanceDate,
		ExpirationDate:     vc.ExpirationDate,
		SubjectID:          vc.CredentialSubject.ID,
		CredentialStatus:   vc.CredentialStatus,
		ProofType:          vc.Proof.Type,
		ProofCreated:       vc.Proof.Created,
		VerificationMethod: vc.Proof.VerificationMethod,
		ProofPurpose:       vc.Proof.ProofPurpose,
	}
	if len(vc.Proof.DisclosureDigests) > 0 {
		in.DisclosureDigests = vc.Proof.DisclosureDigests
	} else {
		claims, err := CanonicalClaims(vc.CredentialSubject.Claims)
		if err != nil {
			return nil, fmt.Errorf("encode signing input: %w", err)
		}
		in.Claims = claims
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode signing input: %w", err)
	}
	return didkey.Digest(raw), nil
}

// Sign attaches a proof by kp, whose DID must be the issuer. Any
// DisclosureDigests set on an existing proof are kept.
func (vc *VerifiableCredential) Sign(kp *didkey.KeyPair, now time.Time) error {
	if kp.DID() != vc.Issuer {
		return fmt.Errorf("signer %s is not the issuer %s", kp.DID(), vc.Issuer)
	}
	var digests map[string]string
	if vc.Proof != nil {
		digests = vc.Proof.DisclosureDigests
	}
	vc.Proof = &Proof{
		Type:               didkey.SignatureType,
		Created:            now.UTC().Truncate(time.Second),
		VerificationMethod: kp.VerificationMethodID(),
		ProofPurpose:       ProofPurposeAssertion,
		DisclosureDigests:  digests,
	}
	digest, err := vc.SigningDigest()
	if err != nil {
		return err
	}
	sig, err := kp.Sign(digest)
	if err != nil {
		return err
	}
	vc.Proof.ProofValue = sig
	return nil
}

// HasType reports whether t is one of the credential's types.
func (vc *VerifiableCredential) HasType(t string) bool {
	for _, have := range vc.Type {
		if have == t {
			return true
		}
	}
	return false
}

// IsExpired reports whether the credential's expiration date has passed.
func (vc *VerifiableCredential) IsExpired(now time.Time) bool {
	return vc.ExpirationDate != nil && !now.Before(*vc.ExpirationDate)
}

// Clone deep-copies the credential.
func (vc *VerifiableCredential) Clone() *VerifiableCredential {
	out := *vc
	out.Context = append([]string(nil), vc.Context...)
	out.Type = append([]string(nil), vc.Type...)
	if vc.ExpirationDate != nil {
		t := *vc.ExpirationDate
		out.ExpirationDate = &t
	}
	out.CredentialSubject.Claims = cloneMap(vc.CredentialSubject.Claims)
	if vc.CredentialStatus != nil {
		cs := *vc.CredentialStatus
		out.CredentialStatus = &cs
	}
	if vc.Proof != nil {
		p := *vc.Proof
		p.DisclosureDigests = cloneStrings(vc.Proof.DisclosureDigests)
		out.Proof = &p
	}
	out.Disclosures = cloneStrings(vc.Disclosures)
	return &out
}

func cloneMap(in Claims) Claims {
	if in == nil {
		return nil
	}
	out := make(Claims, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
