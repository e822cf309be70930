package baseid

import (
	"context"
	"net/http"
	"net/url"
	"time"

	credmodels "baseid/internal/credential/models"
	presmodels "baseid/internal/presentation/models"
	"baseid/internal/privacy/disclosure"
	privacymodels "baseid/internal/privacy/models"
	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
	stringutil "baseid/pkg/platform/strings"
)

// CreateIdentity registers the DID of key. The registration proof is signed
// locally.
func (m *IdentityManager) CreateIdentity(ctx context.Context, key *KeyPair) (*Identity, error) {
	if key == nil {
		return nil, identityErr(dErrors.New(dErrors.CodeInvalidInput, "key is required"))
	}
	proof, err := key.Sign(didkey.RegistrationDigest(key.DID()))
	if err != nil {
		return nil, identityErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign registration proof"))
	}
	var out Identity
	err = m.do(ctx, call{
		method: http.MethodPost,
		path:   "/dids",
		body:   map[string]string{"publicKey": key.PublicKeyHex(), "proof": proof},
		kind:   dErrors.KindIdentity,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Resolve returns the document and metadata of did.
func (m *IdentityManager) Resolve(ctx context.Context, did string) (*Resolution, error) {
	if !IsValidDID(did) {
		return nil, identityErr(dErrors.New(dErrors.CodeBadRequest, "invalid did:base identifier"))
	}
	var out Resolution
	err := m.do(ctx, call{
		method:     http.MethodGet,
		path:       "/dids/" + url.PathEscape(did),
		kind:       dErrors.KindIdentity,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Authenticate answers a fresh registry challenge with key and caches the
// session token for later calls on behalf of the same DID.
func (m *IdentityManager) Authenticate(ctx context.Context, key *KeyPair) (*AuthenticationResult, error) {
	if key == nil {
		return nil, authErr(dErrors.New(dErrors.CodeInvalidInput, "key is required"))
	}
	did := key.DID()
	var challenge struct {
		Nonce string `json:"nonce"`
	}
	err := m.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/challenge",
		body:   map[string]string{"did": did},
		kind:   dErrors.KindAuthentication,
	}, &challenge)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(didkey.AuthenticationDigest(did, challenge.Nonce))
	if err != nil {
		return nil, authErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign challenge"))
	}
	var result AuthenticationResult
	err = m.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/token",
		body:   map[string]string{"did": did, "nonce": challenge.Nonce, "signature": sig},
		kind:   dErrors.KindAuthentication,
	}, &result)
	if err != nil {
		return nil, err
	}
	m.remember(&result)
	return &result, nil
}

// Logout revokes the cached session of key, if any.
func (m *IdentityManager) Logout(ctx context.Context, key *KeyPair) error {
	if key == nil {
		return authErr(dErrors.New(dErrors.CodeInvalidInput, "key is required"))
	}
	m.mu.Lock()
	session, ok := m.sessions[key.DID()]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.forget(key.DID())
	return m.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/logout",
		token:  session.Token,
		kind:   dErrors.KindAuthentication,
	}, nil)
}

// IssueCredential signs a credential about req.Subject with key and
// registers it. With privacy enabled the signature covers salted claim
// commitments and the returned credential carries the salts, which never
// leave the caller.
func (m *IdentityManager) IssueCredential(ctx context.Context, key *KeyPair, req CredentialRequest) (*VerifiableCredential, error) {
	if key == nil {
		return nil, credentialErr(dErrors.New(dErrors.CodeInvalidInput, "issuer key is required"))
	}
	switch {
	case !IsValidDID(req.Subject):
		return nil, credentialErr(dErrors.New(dErrors.CodeBadRequest, "subject must be a did:base identifier"))
	case len(req.Claims) == 0:
		return nil, credentialErr(dErrors.New(dErrors.CodeValidation, "at least one claim is required"))
	}
	if _, ok := req.Claims["id"]; ok {
		return nil, credentialErr(dErrors.New(dErrors.CodeValidation, "claim name id is reserved"))
	}

	now := m.now().UTC().Truncate(time.Second)
	ttl := m.cfg.CredentialTTL
	if req.TTL > 0 {
		ttl = req.TTL
	}
	expires := now.Add(ttl)
	vc := &VerifiableCredential{
		Context:           []string{credmodels.ContextCredentialsV1, credmodels.ContextSecp256k1},
		ID:                credmodels.NewID(),
		Type:              stringutil.DedupeAndTrim(append([]string{credmodels.TypeVerifiableCredential}, req.Types...)),
		Issuer:            key.DID(),
		IssuanceDate:      now,
		ExpirationDate:    &expires,
		CredentialSubject: credmodels.CredentialSubject{ID: req.Subject, Claims: req.Claims},
		CredentialStatus: &credmodels.CredentialStatus{
			ID:   m.base + "/revocations/" + key.DID(),
			Type: credmodels.StatusTypeRevocationRegistry,
		},
	}
	if m.cfg.EnablePrivacy {
		digests, salts, err := disclosure.Commit(req.Claims)
		if err != nil {
			return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit claims"))
		}
		vc.Proof = &credmodels.Proof{DisclosureDigests: digests}
		vc.Disclosures = salts
	}
	if err := vc.Sign(key, now); err != nil {
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign credential"))
	}

	registered := vc.Clone()
	registered.Disclosures = nil
	err := m.authorized(ctx, key, call{
		method: http.MethodPost,
		path:   "/credentials",
		body:   map[string]any{"credential": registered},
		kind:   dErrors.KindCredential,
	}, nil)
	if err != nil {
		return nil, err
	}
	return vc, nil
}

// VerifyCredential checks the issuer signature, claim commitments, expiry
// and revocation status of vc. Failed checks are reported in the result;
// errors mean the registry could not decide.
func (m *IdentityManager) VerifyCredential(ctx context.Context, vc *VerifiableCredential) (*CredentialResult, error) {
	if vc == nil {
		return nil, credentialErr(dErrors.New(dErrors.CodeInvalidInput, "credential is required"))
	}
	var out CredentialResult
	err := m.do(ctx, call{
		method:     http.MethodPost,
		path:       "/credentials/verify",
		body:       map[string]any{"credential": vc},
		kind:       dErrors.KindCredential,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeCredential permanently revokes credential id. key must be its
// issuer.
func (m *IdentityManager) RevokeCredential(ctx context.Context, key *KeyPair, id, reason string) (*CredentialRecord, error) {
	return m.transition(ctx, key, id, "revoke", reason)
}

// SuspendCredential suspends credential id until ReinstateCredential.
func (m *IdentityManager) SuspendCredential(ctx context.Context, key *KeyPair, id, reason string) (*CredentialRecord, error) {
	return m.transition(ctx, key, id, "suspend", reason)
}

func (m *IdentityManager) ReinstateCredential(ctx context.Context, key *KeyPair, id string) (*CredentialRecord, error) {
	return m.transition(ctx, key, id, "reinstate", "")
}

func (m *IdentityManager) transition(ctx context.Context, key *KeyPair, id, action, reason string) (*CredentialRecord, error) {
	if !credmodels.ValidID(id) {
		return nil, credentialErr(dErrors.New(dErrors.CodeBadRequest, "credential id must be a urn:uuid"))
	}
	if action != "reinstate" && reason == "" {
		return nil, credentialErr(dErrors.New(dErrors.CodeValidation, "reason is required"))
	}
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	var out CredentialRecord
	err := m.authorized(ctx, key, call{
		method: http.MethodPost,
		path:   "/credentials/" + url.PathEscape(id) + "/" + action,
		body:   body,
		kind:   dErrors.KindCredential,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCredential returns the registry record of credential id. key must be
// its issuer or subject.
func (m *IdentityManager) GetCredential(ctx context.Context, key *KeyPair, id string) (*CredentialRecord, error) {
	if !credmodels.ValidID(id) {
		return nil, credentialErr(dErrors.New(dErrors.CodeBadRequest, "credential id must be a urn:uuid"))
	}
	var out CredentialRecord
	err := m.authorized(ctx, key, call{
		method:     http.MethodGet,
		path:       "/credentials/" + url.PathEscape(id),
		kind:       dErrors.KindCredential,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PresentationOption adjusts CreatePresentation.
type PresentationOption func(*presentationOptions)

type presentationOptions struct {
	domain string
}

// WithDomain binds the presentation to the verifier's domain.
func WithDomain(domain string) PresentationOption {
	return func(o *presentationOptions) {
		o.domain = domain
	}
}

// CreatePresentation signs a presentation of vcs by key, bound to the
// verifier's challenge. When disclose names claims, each credential is
// reduced to those claims; this requires ZK proofs and credentials issued
// with claim commitments.
func (m *IdentityManager) CreatePresentation(key *KeyPair, vcs []*VerifiableCredential, disclose []string, challenge string, opts ...PresentationOption) (*VerifiablePresentation, error) {
	var o presentationOptions
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case key == nil:
		return nil, credentialErr(dErrors.New(dErrors.CodeInvalidInput, "holder key is required"))
	case challenge == "":
		return nil, credentialErr(dErrors.New(dErrors.CodeValidation, "challenge is required"))
	case len(vcs) == 0:
		return nil, credentialErr(dErrors.New(dErrors.CodeValidation, "at least one credential is required"))
	}
	disclose = stringutil.DedupeAndTrim(disclose)
	if len(disclose) > 0 && !(m.cfg.EnablePrivacy && m.cfg.EnableZKProofs) {
		return nil, privacyErr(dErrors.New(dErrors.CodeForbidden, "selective disclosure requires zk proofs to be enabled"))
	}

	holder := key.DID()
	presented := make([]*VerifiableCredential, 0, len(vcs))
	for _, vc := range vcs {
		if vc == nil {
			return nil, credentialErr(dErrors.New(dErrors.CodeInvalidInput, "credential is required"))
		}
		if vc.CredentialSubject.ID != holder {
			return nil, credentialErr(dErrors.New(dErrors.CodeForbidden, "credential "+vc.ID+" is not about the holder"))
		}
		if len(disclose) == 0 {
			presented = append(presented, vc)
			continue
		}
		derived, err := disclosure.Select(vc, vc.Disclosures, claimsOf(vc, disclose))
		if err != nil {
			return nil, err
		}
		presented = append(presented, derived)
	}

	vp := presmodels.New(holder, presented...)
	if err := vp.Sign(key, challenge, o.domain, m.now()); err != nil {
		return nil, credentialErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign presentation"))
	}
	return vp, nil
}

// claimsOf keeps the names that vc asserts.
func claimsOf(vc *VerifiableCredential, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := vc.CredentialSubject.Claims[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// VerifyPresentation checks the holder proof against challenge and domain
// and every embedded credential. domain may be empty to accept any.
func (m *IdentityManager) VerifyPresentation(ctx context.Context, vp *VerifiablePresentation, challenge, domain string) (*PresentationResult, error) {
	if vp == nil {
		return nil, credentialErr(dErrors.New(dErrors.CodeInvalidInput, "presentation is required"))
	}
	var out PresentationResult
	err := m.do(ctx, call{
		method:     http.MethodPost,
		path:       "/presentations/verify",
		body:       map[string]any{"presentation": vp, "challenge": challenge, "domain": domain},
		kind:       dErrors.KindCredential,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePrivacy replaces the privacy settings of key's DID.
func (m *IdentityManager) UpdatePrivacy(ctx context.Context, key *KeyPair, settings PrivacySettings) (*PrivacySettings, error) {
	if key == nil {
		return nil, privacyErr(dErrors.New(dErrors.CodeInvalidInput, "key is required"))
	}
	if settings.RequireSelectiveDisclosure && !(m.cfg.EnablePrivacy && m.cfg.EnableZKProofs) {
		return nil, privacyErr(dErrors.New(dErrors.CodeForbidden, "selective disclosure requires zk proofs to be enabled"))
	}
	if settings.DefaultDisclosure == nil {
		settings.DefaultDisclosure = []string{}
	}
	var out PrivacySettings
	err := m.authorized(ctx, key, call{
		method: http.MethodPut,
		path:   "/privacy/" + url.PathEscape(key.DID()),
		body: map[string]any{
			"discoverable":               settings.Discoverable,
			"defaultDisclosure":          settings.DefaultDisclosure,
			"requireSelectiveDisclosure": settings.RequireSelectiveDisclosure,
			"shareAuditTrail":            settings.ShareAuditTrail,
		},
		kind: dErrors.KindPrivacy,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Privacy returns the privacy settings of key's DID.
func (m *IdentityManager) Privacy(ctx context.Context, key *KeyPair) (*PrivacySettings, error) {
	if key == nil {
		return nil, privacyErr(dErrors.New(dErrors.CodeInvalidInput, "key is required"))
	}
	var out PrivacySettings
	err := m.authorized(ctx, key, call{
		method:     http.MethodGet,
		path:       "/privacy/" + url.PathEscape(key.DID()),
		kind:       dErrors.KindPrivacy,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateIdentityProof signs a proof that key controls its DID, bound to the
// verifier's challenge and domain.
func (m *IdentityManager) CreateIdentityProof(key *KeyPair, challenge, domain string) (*IdentityProof, error) {
	if key == nil || challenge == "" {
		return nil, privacyErr(dErrors.New(dErrors.CodeValidation, "key and challenge are required"))
	}
	proof, err := privacymodels.NewIdentityProof(key, challenge, domain, m.now())
	if err != nil {
		return nil, privacyErr(dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign identity proof"))
	}
	return proof, nil
}

func (m *IdentityManager) VerifyIdentityProof(ctx context.Context, proof *IdentityProof) (*IdentityProofResult, error) {
	if proof == nil {
		return nil, privacyErr(dErrors.New(dErrors.CodeInvalidInput, "proof is required"))
	}
	var out IdentityProofResult
	err := m.do(ctx, call{
		method: http.MethodPost,
		path:   "/privacy/identity-proofs/verify",
		body: map[string]string{
			"did":        proof.DID,
			"challenge":  proof.Challenge,
			"domain":     proof.Domain,
			"created":    proof.Created.UTC().Format(time.RFC3339),
			"proofValue": proof.ProofValue,
		},
		kind:       dErrors.KindPrivacy,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
