package models

import (
	"strings"
	"time"

	"baseid/internal/ledger"
	dErrors "baseid/pkg/domain-errors"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusDeactivated Status = "deactivated"
)

// CanTransitionTo allows active -> deactivated only.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && next == StatusDeactivated
}

// Record is the stored aggregate for a registered DID.
//
// Invariants:
//   - Document.ID satisfies didkey.IsValid
//   - the first verification method is the derivation key and is never removed
//   - Status transitions active -> deactivated only
//   - every mutation bumps Document.VersionID and Document.Updated
type Record struct {
	Document  Document       `json:"document"`
	Status    Status         `json:"status"`
	Anchor    *ledger.Anchor `json:"anchor,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func NewRecord(doc *Document) *Record {
	return &Record{
		Document:  *doc,
		Status:    StatusActive,
		CreatedAt: doc.Created,
		UpdatedAt: doc.Updated,
	}
}

func (r *Record) DID() string {
	return r.Document.ID
}

func (r *Record) IsActive() bool {
	return r.Status == StatusActive
}

// CanModify rejects updates to deactivated documents.
func (r *Record) CanModify() error {
	if !r.IsActive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "did is deactivated").In(dErrors.KindIdentity)
	}
	return nil
}

// CanDeactivate checks the active -> deactivated transition.
func (r *Record) CanDeactivate() error {
	if !r.Status.CanTransitionTo(StatusDeactivated) {
		return dErrors.New(dErrors.CodeInvariantViolation, "did is already deactivated").In(dErrors.KindIdentity)
	}
	return nil
}

// ApplyDeactivation marks the record deactivated. Call CanDeactivate first.
func (r *Record) ApplyDeactivation(now time.Time) {
	r.Status = StatusDeactivated
	r.Document.Deactivated = true
	r.bump(now)
}

// CanAddService validates svc against the current document.
func (r *Record) CanAddService(svc Service) error {
	if err := r.CanModify(); err != nil {
		return err
	}
	if svc.ID == "" || svc.Type == "" || svc.ServiceEndpoint == "" {
		return dErrors.New(dErrors.CodeValidation, "service id, type and endpoint are required").In(dErrors.KindIdentity)
	}
	id := r.qualify(svc.ID)
	for _, existing := range r.Document.Service {
		if existing.ID == id {
			return dErrors.New(dErrors.CodeConflict, "service id already exists").In(dErrors.KindIdentity)
		}
	}
	return nil
}

func (r *Record) ApplyAddService(svc Service, now time.Time) {
	svc.ID = r.qualify(svc.ID)
	r.Document.Service = append(r.Document.Service, svc)
	r.bump(now)
}

func (r *Record) CanRemoveService(id string) error {
	if err := r.CanModify(); err != nil {
		return err
	}
	if r.serviceIndex(r.qualify(id)) < 0 {
		return dErrors.New(dErrors.CodeNotFound, "service not found").In(dErrors.KindIdentity)
	}
	return nil
}

func (r *Record) ApplyRemoveService(id string, now time.Time) {
	idx := r.serviceIndex(r.qualify(id))
	if idx < 0 {
		return
	}
	r.Document.Service = append(r.Document.Service[:idx], r.Document.Service[idx+1:]...)
	r.bump(now)
}

// CanAddVerificationMethod validates vm. Its controller must be this DID.
func (r *Record) CanAddVerificationMethod(vm VerificationMethod) error {
	if err := r.CanModify(); err != nil {
		return err
	}
	if vm.ID == "" || vm.PublicKeyMultibase == "" {
		return dErrors.New(dErrors.CodeValidation, "verification method id and key are required").In(dErrors.KindIdentity)
	}
	if vm.Controller != "" && vm.Controller != r.DID() {
		return dErrors.New(dErrors.CodeValidation, "verification method controller must be the document subject").In(dErrors.KindIdentity)
	}
	if _, err := vm.Address(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid publicKeyMultibase").In(dErrors.KindIdentity)
	}
	if _, ok := r.Document.FindVerificationMethod(r.qualify(vm.ID)); ok {
		return dErrors.New(dErrors.CodeConflict, "verification method id already exists").In(dErrors.KindIdentity)
	}
	return nil
}

// ApplyAddVerificationMethod appends vm and, when authentication is set,
// lists it for authentication and assertion.
func (r *Record) ApplyAddVerificationMethod(vm VerificationMethod, authentication bool, now time.Time) {
	vm.ID = r.qualify(vm.ID)
	vm.Controller = r.DID()
	r.Document.VerificationMethod = append(r.Document.VerificationMethod, vm)
	if authentication {
		r.Document.Authentication = append(r.Document.Authentication, vm.ID)
		r.Document.AssertionMethod = append(r.Document.AssertionMethod, vm.ID)
	}
	r.bump(now)
}

// Resolution renders the record for resolvers.
func (r *Record) Resolution() *Resolution {
	doc := r.Document
	return &Resolution{
		Document: &doc,
		Metadata: ResolutionMetadata{
			Created:     doc.Created,
			Updated:     doc.Updated,
			VersionID:   doc.VersionID,
			Deactivated: !r.IsActive(),
			Anchor:      r.Anchor,
		},
	}
}

func (r *Record) bump(now time.Time) {
	r.Document.VersionID++
	r.Document.Updated = now
	r.UpdatedAt = now
}

// qualify turns a "#fragment" into "did#fragment".
func (r *Record) qualify(id string) string {
	if strings.HasPrefix(id, "#") {
		return r.DID() + id
	}
	return id
}

func (r *Record) serviceIndex(id string) int {
	for i, s := range r.Document.Service {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so stores never hand out shared slices.
func (r *Record) Clone() *Record {
	out := *r
	out.Document.Context = append([]string(nil), r.Document.Context...)
	out.Document.VerificationMethod = append([]VerificationMethod(nil), r.Document.VerificationMethod...)
	out.Document.Authentication = append([]string(nil), r.Document.Authentication...)
	out.Document.AssertionMethod = append([]string(nil), r.Document.AssertionMethod...)
	out.Document.Service = append([]Service(nil), r.Document.Service...)
	if r.Anchor != nil {
		a := *r.Anchor
		out.Anchor = &a
	}
	return &out
}
