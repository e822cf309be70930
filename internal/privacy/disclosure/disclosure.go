// Package disclosure implements salted claim commitments for selective
// disclosure.
//
// At issuance each claim is committed as
//
//	hex(sha3-256(salt || name || json(value)))
//
// and the issuer signs the commitments instead of the values. The holder
// keeps the salts and later reveals any subset of claims together with their
// salts; a verifier recomputes the commitments of the revealed claims only.
package disclosure

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/crypto/sha3"

	"baseid/internal/credential/models"
	dErrors "baseid/pkg/domain-errors"
)

const saltBytes = 16

// NewSalt returns a random hex salt.
func NewSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DigestClaim computes the commitment to one claim.
func DigestClaim(salt, name string, value any) (string, error) {
	rawSalt, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	canon, err := models.CanonicalValue(value)
	if err != nil {
		return "", fmt.Errorf("encode claim %q: %w", name, err)
	}
	encoded, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("encode claim %q: %w", name, err)
	}
	h := sha3.New256()
	h.Write(rawSalt)
	h.Write([]byte(name))
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Commit salts and commits every claim. It returns the digests to sign and
// the salts for the holder.
func Commit(claims models.Claims) (digests, salts map[string]string, err error) {
	digests = make(map[string]string, len(claims))
	salts = make(map[string]string, len(claims))
	for name, value := range claims {
		salt, err := NewSalt()
		if err != nil {
			return nil, nil, fmt.Errorf("generate salt: %w", err)
		}
		d, err := DigestClaim(salt, name, value)
		if err != nil {
			return nil, nil, err
		}
		digests[name] = d
		salts[name] = salt
	}
	return digests, salts, nil
}

// Select derives a credential revealing only names. The proof is kept
// unchanged so the issuer signature over the digests still verifies.
func Select(vc *models.VerifiableCredential, salts map[string]string, names []string) (*models.VerifiableCredential, error) {
	if vc.Proof == nil || len(vc.Proof.DisclosureDigests) == 0 {
		return nil, privacyErr(dErrors.New(dErrors.CodeBadRequest, "credential was not issued with selective disclosure"))
	}
	out := vc.Clone()
	out.CredentialSubject.Claims = make(models.Claims, len(names))
	out.Disclosures = make(map[string]string, len(names))
	for _, name := range names {
		value, ok := vc.CredentialSubject.Claims[name]
		if !ok {
			return nil, privacyErr(dErrors.New(dErrors.CodeValidation, fmt.Sprintf("claim %q not present in credential", name)))
		}
		salt, ok := salts[name]
		if !ok {
			return nil, privacyErr(dErrors.New(dErrors.CodeValidation, fmt.Sprintf("no salt for claim %q", name)))
		}
		out.CredentialSubject.Claims[name] = value
		out.Disclosures[name] = salt
	}
	return out, nil
}

// Verify checks every revealed claim against its signed commitment. Claims
// without a commitment or salt fail.
func Verify(vc *models.VerifiableCredential) error {
	if vc.Proof == nil || len(vc.Proof.DisclosureDigests) == 0 {
		return nil
	}
	names := make([]string, 0, len(vc.CredentialSubject.Claims))
	for name := range vc.CredentialSubject.Claims {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		want, ok := vc.Proof.DisclosureDigests[name]
		if !ok {
			return privacyErr(dErrors.New(dErrors.CodeInvalidSignature, fmt.Sprintf("claim %q is not committed", name)))
		}
		salt, ok := vc.Disclosures[name]
		if !ok {
			return privacyErr(dErrors.New(dErrors.CodeInvalidSignature, fmt.Sprintf("claim %q has no disclosure salt", name)))
		}
		got, err := DigestClaim(salt, name, vc.CredentialSubject.Claims[name])
		if err != nil {
			return privacyErr(dErrors.Wrap(err, dErrors.CodeInvalidSignature, fmt.Sprintf("claim %q cannot be digested", name)))
		}
		if got != want {
			return privacyErr(dErrors.New(dErrors.CodeInvalidSignature, fmt.Sprintf("claim %q does not match its commitment", name)))
		}
	}
	return nil
}

func privacyErr(err *dErrors.Error) *dErrors.Error {
	return err.In(dErrors.KindPrivacy)
}
