package handler

import (
	"time"

	"baseid/internal/credential/models"
	"baseid/internal/ledger"
)

type issueResponse struct {
	Credential *models.VerifiableCredential `json:"credential"`
}

type recordResponse struct {
	Credential   *models.VerifiableCredential `json:"credential"`
	Status       models.Status                `json:"status"`
	StatusReason string                       `json:"statusReason,omitempty"`
	Anchor       *ledger.Anchor               `json:"anchor,omitempty"`
	CreatedAt    time.Time                    `json:"createdAt"`
	UpdatedAt    time.Time                    `json:"updatedAt"`
}

type listResponse struct {
	Credentials []recordResponse `json:"credentials"`
}

func toRecordResponse(r *models.Record, now time.Time) recordResponse {
	vc := r.Credential
	return recordResponse{
		Credential:   &vc,
		Status:       r.EffectiveStatus(now),
		StatusReason: r.StatusReason,
		Anchor:       r.Anchor,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toListResponse(records []*models.Record, now time.Time) listResponse {
	out := listResponse{Credentials: make([]recordResponse, 0, len(records))}
	for _, r := range records {
		out.Credentials = append(out.Credentials, toRecordResponse(r, now))
	}
	return out
}
