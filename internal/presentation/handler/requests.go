package handler

import (
	"fmt"

	"baseid/internal/presentation/models"
	"baseid/internal/presentation/service"
	dErrors "baseid/pkg/domain-errors"
)

// VerifyRequest is the body of POST /presentations/verify. Challenge and
// Domain are the values the verifier handed to the holder.
type VerifyRequest struct {
	Presentation *models.VerifiablePresentation `json:"presentation" validate:"required"`
	Challenge    string                         `json:"challenge" validate:"required,max=256"`
	Domain       string                         `json:"domain" validate:"max=256"`
}

func (r *VerifyRequest) Validate() error {
	if len(r.Presentation.VerifiableCredential) > service.MaxCredentials {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("presentation may carry at most %d credentials", service.MaxCredentials))
	}
	return nil
}
