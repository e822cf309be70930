// Package models holds per-DID privacy settings and identity proofs.
package models

import (
	"fmt"
	"strconv"
	"time"

	"baseid/pkg/didkey"
)

// Settings are a DID controller's privacy preferences.
type Settings struct {
	DID string `json:"did"`
	// Discoverable lists the DID in the public holder index.
	Discoverable bool `json:"discoverable"`
	// DefaultDisclosure names the claims revealed when a disclosure does not
	// select any.
	DefaultDisclosure []string `json:"defaultDisclosure"`
	// RequireSelectiveDisclosure rejects presentations by this holder that
	// embed credentials without claim commitments.
	RequireSelectiveDisclosure bool `json:"requireSelectiveDisclosure"`
	// ShareAuditTrail exposes the DID's audit events to any authenticated
	// caller.
	ShareAuditTrail bool      `json:"shareAuditTrail"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Defaults are the settings of a DID that never saved any: not listed,
// nothing disclosed by default, audit trail private.
func Defaults(did string) *Settings {
	return &Settings{DID: did, DefaultDisclosure: []string{}}
}

func (s *Settings) Clone() *Settings {
	out := *s
	out.DefaultDisclosure = append([]string{}, s.DefaultDisclosure...)
	return &out
}

// IdentityProof is a holder-signed statement that DID answered Challenge
// for Domain at Created.
type IdentityProof struct {
	DID        string    `json:"did"`
	Challenge  string    `json:"challenge"`
	Domain     string    `json:"domain,omitempty"`
	Created    time.Time `json:"created"`
	ProofValue string    `json:"proofValue"`
}

// Digest is the message the controller signs.
func (p *IdentityProof) Digest() []byte {
	return didkey.Digest([]byte("baseid:identity:" + p.DID + ":" + p.Challenge + ":" + p.Domain + ":" +
		strconv.FormatInt(p.Created.Unix(), 10)))
}

// NewIdentityProof signs challenge and domain with kp.
func NewIdentityProof(kp *didkey.KeyPair, challenge, domain string, now time.Time) (*IdentityProof, error) {
	p := &IdentityProof{DID: kp.DID(), Challenge: challenge, Domain: domain, Created: now.UTC().Truncate(time.Second)}
	sig, err := kp.Sign(p.Digest())
	if err != nil {
		return nil, fmt.Errorf("sign identity proof: %w", err)
	}
	p.ProofValue = sig
	return p, nil
}

// DisclosureResult reports whether the revealed claims of a credential match
// their signed commitments.
type DisclosureResult struct {
	Valid     bool     `json:"valid"`
	Disclosed []string `json:"disclosed"`
	Error     string   `json:"error,omitempty"`
}

// IdentityProofResult reports an identity proof check.
type IdentityProofResult struct {
	Valid bool   `json:"valid"`
	DID   string `json:"did"`
	Error string `json:"error,omitempty"`
}
