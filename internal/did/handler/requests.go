package handler

import (
	"strings"

	"baseid/internal/did/models"
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
)

// RegisterRequest is the body of POST /dids.
type RegisterRequest struct {
	PublicKey string `json:"publicKey" validate:"required,max=132"`
	Proof     string `json:"proof" validate:"required,max=132"`
}

// Validate normalises hex inputs.
func (r *RegisterRequest) Validate() error {
	r.PublicKey = strings.TrimPrefix(strings.TrimSpace(r.PublicKey), "0x")
	r.Proof = strings.TrimPrefix(strings.TrimSpace(r.Proof), "0x")
	if !isHex(r.PublicKey) || !isHex(r.Proof) {
		return dErrors.New(dErrors.CodeValidation, "publicKey and proof must be hex encoded")
	}
	return nil
}

// AddServiceRequest is the body of POST /dids/{did}/services.
type AddServiceRequest struct {
	ID              string `json:"id" validate:"required,max=128"`
	Type            string `json:"type" validate:"required,max=64"`
	ServiceEndpoint string `json:"serviceEndpoint" validate:"required,url,max=2048"`
}

func (r *AddServiceRequest) Service() models.Service {
	return models.Service{ID: fragment(r.ID), Type: r.Type, ServiceEndpoint: r.ServiceEndpoint}
}

// AddVerificationMethodRequest is the body of POST /dids/{did}/verification-methods.
type AddVerificationMethodRequest struct {
	ID                 string `json:"id" validate:"required,max=128"`
	PublicKeyMultibase string `json:"publicKeyMultibase" validate:"required,max=128"`
	Authentication     bool   `json:"authentication"`
}

func (r *AddVerificationMethodRequest) VerificationMethod() models.VerificationMethod {
	return models.VerificationMethod{
		ID:                 fragment(r.ID),
		Type:               didkey.VerificationKeyType,
		PublicKeyMultibase: r.PublicKeyMultibase,
	}
}

// fragment accepts "key-1" as shorthand for "#key-1".
func fragment(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "#") || strings.HasPrefix(id, didkey.Prefix) {
		return id
	}
	return "#" + id
}

func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
