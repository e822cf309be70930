package models

import (
	"time"

	"baseid/internal/ledger"
	dErrors "baseid/pkg/domain-errors"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	// StatusExpired is never stored. It is derived from the expiration date.
	StatusExpired Status = "expired"
)

// CanTransitionTo encodes the lifecycle: active <-> suspended, and
// active|suspended -> revoked. Revoked is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusSuspended || next == StatusRevoked
	case StatusSuspended:
		return next == StatusActive || next == StatusRevoked
	default:
		return false
	}
}

// Record is a stored credential and its lifecycle state.
type Record struct {
	Credential   VerifiableCredential `json:"credential"`
	Status       Status               `json:"status"`
	StatusReason string               `json:"statusReason,omitempty"`
	Anchor       *ledger.Anchor       `json:"anchor,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

func NewRecord(vc *VerifiableCredential, now time.Time) *Record {
	stored := vc.Clone()
	stored.Disclosures = nil
	return &Record{
		Credential: *stored,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *Record) ID() string {
	return r.Credential.ID
}

func (r *Record) Issuer() string {
	return r.Credential.Issuer
}

func (r *Record) Subject() string {
	return r.Credential.CredentialSubject.ID
}

// EffectiveStatus is Status, or expired for a non-revoked credential past
// its expiration date.
func (r *Record) EffectiveStatus(now time.Time) Status {
	if r.Status != StatusRevoked && r.Credential.IsExpired(now) {
		return StatusExpired
	}
	return r.Status
}

func (r *Record) CanSuspend() error {
	return r.canTransition(StatusSuspended)
}

func (r *Record) ApplySuspension(reason string, now time.Time) {
	r.apply(StatusSuspended, reason, now)
}

func (r *Record) CanReinstate() error {
	return r.canTransition(StatusActive)
}

func (r *Record) ApplyReinstatement(now time.Time) {
	r.apply(StatusActive, "", now)
}

func (r *Record) CanRevoke() error {
	return r.canTransition(StatusRevoked)
}

func (r *Record) ApplyRevocation(reason string, now time.Time) {
	r.apply(StatusRevoked, reason, now)
}

func (r *Record) canTransition(next Status) error {
	if r.Status == next {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential is already "+string(next)).In(dErrors.KindCredential)
	}
	if !r.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot move credential from "+string(r.Status)+" to "+string(next)).In(dErrors.KindCredential)
	}
	return nil
}

func (r *Record) apply(next Status, reason string, now time.Time) {
	r.Status = next
	r.StatusReason = reason
	r.UpdatedAt = now
}

func (r *Record) Clone() *Record {
	out := *r
	out.Credential = *r.Credential.Clone()
	if r.Anchor != nil {
		a := *r.Anchor
		out.Anchor = &a
	}
	return &out
}

// Check names reported in VerificationResult.Checks.
const (
	CheckSignature    = "signature"
	CheckIssuer       = "issuer"
	CheckRevocation   = "revocation"
	CheckStatus       = "status"
	CheckExpiry       = "expiry"
	CheckIssuanceDate = "issuanceDate"
	CheckDisclosure   = "disclosure"
)

// VerificationResult reports every check; Valid is their conjunction.
type VerificationResult struct {
	Valid  bool            `json:"valid"`
	Checks map[string]bool `json:"checks"`
	Errors []string        `json:"errors,omitempty"`
	Status Status          `json:"status,omitempty"`
}

func NewVerificationResult() *VerificationResult {
	return &VerificationResult{Checks: make(map[string]bool)}
}

// Pass records a successful check.
func (r *VerificationResult) Pass(check string) {
	if _, seen := r.Checks[check]; !seen {
		r.Checks[check] = true
	}
}

// Fail records a failed check with a reason. A failure overrides a pass.
func (r *VerificationResult) Fail(check, reason string) {
	r.Checks[check] = false
	r.Errors = append(r.Errors, reason)
}

// Finalize computes Valid.
func (r *VerificationResult) Finalize() *VerificationResult {
	r.Valid = len(r.Checks) > 0
	for _, ok := range r.Checks {
		if !ok {
			r.Valid = false
		}
	}
	return r
}
