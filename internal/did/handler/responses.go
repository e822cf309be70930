package handler

import (
	"baseid/internal/did/models"
	"baseid/internal/ledger"
)

type documentResponse struct {
	DID      string           `json:"did"`
	Status   models.Status    `json:"status"`
	Document *models.Document `json:"didDocument"`
	Anchor   *ledger.Anchor   `json:"anchor,omitempty"`
}

func toDocumentResponse(r *models.Record) documentResponse {
	doc := r.Document
	return documentResponse{
		DID:      r.DID(),
		Status:   r.Status,
		Document: &doc,
		Anchor:   r.Anchor,
	}
}
