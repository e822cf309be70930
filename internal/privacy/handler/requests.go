package handler

import (
	credmodels "baseid/internal/credential/models"
	"baseid/internal/privacy/models"
)

// UpdateSettingsRequest is the body of PUT /privacy/{did}.
type UpdateSettingsRequest struct {
	Discoverable               bool     `json:"discoverable"`
	DefaultDisclosure          []string `json:"defaultDisclosure" validate:"max=64,dive,required,max=64"`
	RequireSelectiveDisclosure bool     `json:"requireSelectiveDisclosure"`
	ShareAuditTrail            bool     `json:"shareAuditTrail"`
}

func (r *UpdateSettingsRequest) Settings() models.Settings {
	return models.Settings{
		Discoverable:               r.Discoverable,
		DefaultDisclosure:          r.DefaultDisclosure,
		RequireSelectiveDisclosure: r.RequireSelectiveDisclosure,
		ShareAuditTrail:            r.ShareAuditTrail,
	}
}

// DiscloseRequest is the body of POST /privacy/disclosures. The credential
// must include its disclosure salts.
type DiscloseRequest struct {
	Credential *credmodels.VerifiableCredential `json:"credential" validate:"required"`
	Claims     []string                         `json:"claims" validate:"max=64,dive,required,max=64"`
}

// VerifyDisclosureRequest is the body of POST /privacy/disclosures/verify.
type VerifyDisclosureRequest struct {
	Credential *credmodels.VerifiableCredential `json:"credential" validate:"required"`
}

// VerifyIdentityProofRequest is the body of POST /privacy/identity-proofs/verify.
type VerifyIdentityProofRequest struct {
	DID        string `json:"did" validate:"required,did"`
	Challenge  string `json:"challenge" validate:"required,max=256"`
	Domain     string `json:"domain" validate:"max=256"`
	Created    string `json:"created" validate:"required,max=64"`
	ProofValue string `json:"proofValue" validate:"required,max=132"`
}
