package handler

import (
	"time"

	"baseid/internal/credential/models"
	"baseid/internal/credential/service"
	dErrors "baseid/pkg/domain-errors"
)

// IssueRequest is the body of POST /credentials/issue.
type IssueRequest struct {
	Subject string        `json:"subject" validate:"required,did"`
	Types   []string      `json:"type" validate:"max=8,dive,required,max=64"`
	Claims  models.Claims `json:"claims" validate:"required,min=1,max=64"`
	TTL     string        `json:"ttl,omitempty" validate:"omitempty,max=32"`

	ttl time.Duration
}

// Validate parses the optional TTL, a Go duration such as "720h".
func (r *IssueRequest) Validate() error {
	if r.TTL == "" {
		return nil
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil || d <= 0 {
		return dErrors.New(dErrors.CodeValidation, "ttl must be a positive duration")
	}
	r.ttl = d
	return nil
}

func (r *IssueRequest) ToService() service.IssueRequest {
	return service.IssueRequest{Subject: r.Subject, Types: r.Types, Claims: r.Claims, TTL: r.ttl}
}

// CredentialRequest wraps a credential for POST /credentials and
// POST /credentials/verify.
type CredentialRequest struct {
	Credential *models.VerifiableCredential `json:"credential" validate:"required"`
}

// StatusRequest is the body of revoke and suspend.
type StatusRequest struct {
	Reason string `json:"reason" validate:"required,max=256"`
}
