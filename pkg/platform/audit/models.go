package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers registry writes with legal significance:
	// identity lifecycle and credential status changes.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authentication outcomes and token revocation.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine reads and verifications.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	// DID is the identity the event is about (the document, the credential
	// subject, the authenticating controller).
	DID     string
	Subject string
	Action  string
	Reason  string
	// ActorDID is set when the caller differs from DID, e.g. an issuer
	// revoking a subject's credential.
	ActorDID  string
	RequestID string
	ClientIP  string
	Client    string
}

type AuditEvent string

const (
	EventDIDRegistered          AuditEvent = "did_registered"
	EventDIDUpdated             AuditEvent = "did_updated"
	EventDIDDeactivated         AuditEvent = "did_deactivated"
	EventCredentialIssued       AuditEvent = "credential_issued"
	EventCredentialRegistered   AuditEvent = "credential_registered"
	EventCredentialRevoked      AuditEvent = "credential_revoked"
	EventCredentialSuspended    AuditEvent = "credential_suspended"
	EventCredentialReinstated   AuditEvent = "credential_reinstated"
	EventCredentialVerified     AuditEvent = "credential_verified"
	EventPresentationVerified   AuditEvent = "presentation_verified"
	EventChallengeIssued        AuditEvent = "challenge_issued"
	EventAuthSucceeded          AuditEvent = "auth_succeeded"
	EventAuthFailed             AuditEvent = "auth_failed"
	EventTokenRevoked           AuditEvent = "token_revoked"
	EventPrivacySettingsUpdated AuditEvent = "privacy_settings_updated"
	EventDisclosureCreated      AuditEvent = "disclosure_created"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDIDRegistered:          CategoryCompliance,
	EventDIDUpdated:             CategoryCompliance,
	EventDIDDeactivated:         CategoryCompliance,
	EventCredentialIssued:       CategoryCompliance,
	EventCredentialRegistered:   CategoryCompliance,
	EventCredentialRevoked:      CategoryCompliance,
	EventCredentialSuspended:    CategoryCompliance,
	EventCredentialReinstated:   CategoryCompliance,
	EventPrivacySettingsUpdated: CategoryCompliance,

	EventAuthFailed:    CategorySecurity,
	EventAuthSucceeded: CategorySecurity,
	EventTokenRevoked:  CategorySecurity,

	EventChallengeIssued:      CategoryOperations,
	EventCredentialVerified:   CategoryOperations,
	EventPresentationVerified: CategoryOperations,
	EventDisclosureCreated:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDID(ctx context.Context, did string) ([]Event, error)
}
