package models

import (
	"encoding/json"
	"fmt"
	"time"

	credmodels "baseid/internal/credential/models"
	"baseid/pkg/didkey"
)

const (
	TypeVerifiablePresentation = "VerifiablePresentation"

	ProofPurposeAuthentication = "authentication"
)

// Proof is the holder's signature over the presentation, bound to a
// verifier-supplied challenge and domain to prevent replay.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofPurpose       string    `json:"proofPurpose"`
	Challenge          string    `json:"challenge"`
	Domain             string    `json:"domain,omitempty"`
	ProofValue         string    `json:"proofValue"`
}

// VerifiablePresentation follows the W3C VC data model v1.
type VerifiablePresentation struct {
	Context              []string                           `json:"@context"`
	ID                   string                             `json:"id,omitempty"`
	Type                 []string                           `json:"type"`
	Holder               string                             `json:"holder"`
	VerifiableCredential []*credmodels.VerifiableCredential `json:"verifiableCredential"`
	Proof                *Proof                             `json:"proof,omitempty"`
}

// New builds an unsigned presentation of vcs by holder.
func New(holder string, vcs ...*credmodels.VerifiableCredential) *VerifiablePresentation {
	return &VerifiablePresentation{
		Context:              []string{credmodels.ContextCredentialsV1},
		ID:                   credmodels.NewID(),
		Type:                 []string{TypeVerifiablePresentation},
		Holder:               holder,
		VerifiableCredential: vcs,
	}
}

func (vp *VerifiablePresentation) HasType(t string) bool {
	for _, have := range vp.Type {
		if have == t {
			return true
		}
	}
	return false
}

type signingInput struct {
	Context            []string                           `json:"@context"`
	ID                 string                             `json:"id,omitempty"`
	Type               []string                           `json:"type"`
	Holder             string                             `json:"holder"`
	Credentials        []*credmodels.VerifiableCredential `json:"verifiableCredential"`
	ProofType          string                             `json:"proofType"`
	ProofCreated       time.Time                          `json:"proofCreated"`
	VerificationMethod string                             `json:"verificationMethod"`
	ProofPurpose       string                             `json:"proofPurpose"`
	Challenge          string                             `json:"challenge"`
	Domain             string                             `json:"domain,omitempty"`
}

// SigningDigest is keccak256 over the presentation with its embedded
// credentials (disclosed claims and salts included) and proof metadata.
func (vp *VerifiablePresentation) SigningDigest() ([]byte, error) {
	if vp.Proof == nil {
		return nil, fmt.Errorf("presentation has no proof")
	}
	raw, err := json.Marshal(signingInput{
		Context:            vp.Context,
		ID:                 vp.ID,
		Type:               vp.Type,
		Holder:             vp.Holder,
		Credentials:        vp.VerifiableCredential,
		ProofType:          vp.Proof.Type,
		ProofCreated:       vp.Proof.Created,
		VerificationMethod: vp.Proof.VerificationMethod,
		ProofPurpose:       vp.Proof.ProofPurpose,
		Challenge:          vp.Proof.Challenge,
		Domain:             vp.Proof.Domain,
	})
	if err != nil {
		return nil, fmt.Errorf("encode presentation signing input: %w", err)
	}
	return didkey.Digest(raw), nil
}

// Sign attaches the holder proof. kp must control the holder DID.
func (vp *VerifiablePresentation) Sign(kp *didkey.KeyPair, challenge, domain string, now time.Time) error {
	if kp.DID() != vp.Holder {
		return fmt.Errorf("signer %s is not the holder %s", kp.DID(), vp.Holder)
	}
	vp.Proof = &Proof{
		Type:               didkey.SignatureType,
		Created:            now.UTC().Truncate(time.Second),
		VerificationMethod: kp.VerificationMethodID(),
		ProofPurpose:       ProofPurposeAuthentication,
		Challenge:          challenge,
		Domain:             domain,
	}
	digest, err := vp.SigningDigest()
	if err != nil {
		return err
	}
	sig, err := kp.Sign(digest)
	if err != nil {
		return err
	}
	vp.Proof.ProofValue = sig
	return nil
}

// Result reports the presentation checks and each embedded credential's
// verification.
type Result struct {
	Valid       bool                             `json:"valid"`
	Holder      string                           `json:"holder"`
	Checks      map[string]bool                  `json:"checks"`
	Errors      []string                         `json:"errors,omitempty"`
	Credentials []*credmodels.VerificationResult `json:"credentials"`
}

// Check names reported in Result.Checks.
const (
	CheckHolderSignature     = "holderSignature"
	CheckChallenge           = "challenge"
	CheckDomain              = "domain"
	CheckSubjectBinding      = "subjectBinding"
	CheckCredentials         = "credentials"
	CheckSelectiveDisclosure = "selectiveDisclosure"
)

func NewResult(holder string) *Result {
	return &Result{Holder: holder, Checks: make(map[string]bool), Credentials: make([]*credmodels.VerificationResult, 0)}
}

func (r *Result) Pass(check string) {
	if _, seen := r.Checks[check]; !seen {
		r.Checks[check] = true
	}
}

func (r *Result) Fail(check, reason string) {
	r.Checks[check] = false
	r.Errors = append(r.Errors, reason)
}

func (r *Result) Finalize() *Result {
	r.Valid = len(r.Checks) > 0
	for _, ok := range r.Checks {
		if !ok {
			r.Valid = false
		}
	}
	return r
}
