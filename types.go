package baseid

import (
	"time"

	authmodels "baseid/internal/auth/models"
	credmodels "baseid/internal/credential/models"
	didmodels "baseid/internal/did/models"
	"baseid/internal/ledger"
	presmodels "baseid/internal/presentation/models"
	privacymodels "baseid/internal/privacy/models"
)

type (
	DIDDocument            = didmodels.Document
	Resolution             = didmodels.Resolution
	VerifiableCredential   = credmodels.VerifiableCredential
	Claims                 = credmodels.Claims
	CredentialResult       = credmodels.VerificationResult
	CredentialStatus       = credmodels.Status
	VerifiablePresentation = presmodels.VerifiablePresentation
	PresentationResult     = presmodels.Result
	AuthenticationResult   = authmodels.AuthenticationResult
	IdentityProof          = privacymodels.IdentityProof
	IdentityProofResult    = privacymodels.IdentityProofResult
	PrivacySettings        = privacymodels.Settings
	Anchor                 = ledger.Anchor
)

// Credential lifecycle states.
const (
	StatusActive    = credmodels.StatusActive
	StatusSuspended = credmodels.StatusSuspended
	StatusRevoked   = credmodels.StatusRevoked
	StatusExpired   = credmodels.StatusExpired
)

// Identity is a DID registered on the registry.
type Identity struct {
	DID      string       `json:"did"`
	Status   string       `json:"status"`
	Document *DIDDocument `json:"didDocument"`
	Anchor   *Anchor      `json:"anchor,omitempty"`
}

// CredentialRequest describes a credential to issue.
type CredentialRequest struct {
	Subject string
	// Types are appended to VerifiableCredential.
	Types  []string
	Claims Claims
	// TTL overrides Config.CredentialTTL when positive.
	TTL time.Duration
}

// CredentialRecord is the registry's view of a credential.
type CredentialRecord struct {
	Credential   *VerifiableCredential `json:"credential"`
	Status       CredentialStatus      `json:"status"`
	StatusReason string                `json:"statusReason,omitempty"`
	Anchor       *Anchor               `json:"anchor,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}
