package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baseid/pkg/didkey"
	dErrors "baseid/pkg/domain-errors"
)

func signed(t *testing.T) (*VerifiableCredential, *didkey.KeyPair) {
	t.Helper()
	kp, err := didkey.Generate()
	require.NoError(t, err)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	vc := &VerifiableCredential{
		Context:           []string{ContextCredentialsV1},
		ID:                NewID(),
		Type:              []string{TypeVerifiableCredential},
		Issuer:            kp.DID(),
		IssuanceDate:      now,
		CredentialSubject: CredentialSubject{ID: "did:base:2c7536e3605d9c16a7a3d7b1898e529396a65c23", Claims: Claims{"tier": "gold"}},
	}
	require.NoError(t, vc.Sign(kp, now))
	return vc, kp
}

func TestSignature(t *testing.T) {
	vc, kp := signed(t)
	assert.Equal(t, didkey.SignatureType, vc.Proof.Type)
	assert.Equal(t, kp.VerificationMethodID(), vc.Proof.VerificationMethod)

	digest, err := vc.SigningDigest()
	require.NoError(t, err)
	require.NoError(t, didkey.VerifyDID(kp.DID(), digest, vc.Proof.ProofValue))

	t.Run("survives json", func(t *testing.T) {
		raw, err := json.Marshal(vc)
		require.NoError(t, err)
		var decoded VerifiableCredential
		require.NoError(t, json.Unmarshal(raw, &decoded))
		again, err := decoded.SigningDigest()
		require.NoError(t, err)
		assert.Equal(t, digest, again)
	})

	t.Run("claims are covered", func(t *testing.T) {
		tampered := vc.Clone()
		tampered.CredentialSubject.Claims["tier"] = "platinum"
		other, err := tampered.SigningDigest()
		require.NoError(t, err)
		assert.NotEqual(t, digest, other)
	})

	t.Run("signer must be issuer", func(t *testing.T) {
		other, err := didkey.Generate()
		require.NoError(t, err)
		assert.Error(t, vc.Clone().Sign(other, time.Now()))
	})
}

func TestCredentialSubjectJSON(t *testing.T) {
	raw := []byte(`{"id":"did:base:abc","age":36,"country":"GB"}`)
	var subject CredentialSubject
	require.NoError(t, json.Unmarshal(raw, &subject))
	assert.Equal(t, "did:base:abc", subject.ID)
	assert.Equal(t, Claims{"age": json.Number("36"), "country": "GB"}, subject.Claims)

	out, err := json.Marshal(subject)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}

type address struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	Postcode int    `json:"postcode"`
}

func TestStructuredClaimsSurviveJSON(t *testing.T) {
	kp, err := didkey.Generate()
	require.NoError(t, err)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	vc := &VerifiableCredential{
		Context:      []string{ContextCredentialsV1},
		ID:           NewID(),
		Type:         []string{TypeVerifiableCredential},
		Issuer:       kp.DID(),
		IssuanceDate: now,
		CredentialSubject: CredentialSubject{ID: "did:base:2c7536e3605d9c16a7a3d7b1898e529396a65c23", Claims: Claims{
			"address": address{Street: "1 High St", City: "London", Postcode: 12345},
			"scores":  []int{9007199254740993, 2},
			"age":     36,
		}},
	}
	require.NoError(t, vc.Sign(kp, now))

	raw, err := json.Marshal(vc)
	require.NoError(t, err)
	var decoded VerifiableCredential
	require.NoError(t, json.Unmarshal(raw, &decoded))

	digest, err := decoded.SigningDigest()
	require.NoError(t, err)
	require.NoError(t, didkey.VerifyDID(kp.DID(), digest, decoded.Proof.ProofValue))

	again, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(again))
}

func TestCanonicalValue(t *testing.T) {
	canon, err := CanonicalValue(address{Street: "x", City: "y", Postcode: 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"street": "x", "city": "y", "postcode": json.Number("1")}, canon)

	_, err = CanonicalValue(func() {})
	assert.Error(t, err)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID("urn:uuid:nope"))
	assert.False(t, ValidID("7f1d6f2e-3b9a-4a47-9d8e-3c1f1b0b2a11"))
}

func TestRecordLifecycle(t *testing.T) {
	vc, _ := signed(t)
	vc.Disclosures = map[string]string{"tier": "00"}
	now := vc.IssuanceDate
	r := NewRecord(vc, now)
	assert.Nil(t, r.Credential.Disclosures)
	assert.Equal(t, StatusActive, r.Status)

	require.NoError(t, r.CanSuspend())
	r.ApplySuspension("review", now)
	assert.Equal(t, StatusSuspended, r.Status)
	assert.True(t, dErrors.HasCode(r.CanSuspend(), dErrors.CodeInvariantViolation))

	require.NoError(t, r.CanReinstate())
	r.ApplyReinstatement(now)
	assert.Empty(t, r.StatusReason)

	require.NoError(t, r.CanRevoke())
	r.ApplyRevocation("compromised", now)
	for _, err := range []error{r.CanRevoke(), r.CanSuspend(), r.CanReinstate()} {
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		assert.True(t, dErrors.HasKind(err, dErrors.KindCredential))
	}
}

func TestEffectiveStatus(t *testing.T) {
	vc, _ := signed(t)
	exp := vc.IssuanceDate.Add(time.Hour)
	vc.ExpirationDate = &exp
	r := NewRecord(vc, vc.IssuanceDate)

	assert.Equal(t, StatusActive, r.EffectiveStatus(vc.IssuanceDate))
	assert.Equal(t, StatusExpired, r.EffectiveStatus(exp))

	r.ApplyRevocation("x", exp)
	assert.Equal(t, StatusRevoked, r.EffectiveStatus(exp.Add(time.Hour)))
}

func TestVerificationResult(t *testing.T) {
	assert.False(t, NewVerificationResult().Finalize().Valid)

	r := NewVerificationResult()
	r.Pass(CheckSignature)
	r.Fail(CheckStatus, "suspended")
	r.Pass(CheckStatus)
	r.Finalize()
	assert.False(t, r.Valid)
	assert.False(t, r.Checks[CheckStatus])
	assert.Equal(t, []string{"suspended"}, r.Errors)
}
