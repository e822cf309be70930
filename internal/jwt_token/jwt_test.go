package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "baseid/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)

const did = "did:base:970e8128ab834e8eac17ab8e3812f010678cf791"

var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	now := time.Now()
	token, err := jwtService.GenerateAccessToken(did, now, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)
	require.NotEmpty(t, token.JTI)

	claims, err := jwtService.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, did, claims.DID())
	assert.Equal(t, token.JTI, claims.ID)
	assert.WithinDuration(t, now.Add(expiresIn), claims.ExpiresAt.Time, time.Second)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	assert.True(t, dErrors.HasKind(err, dErrors.KindAuthentication))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(did, time.Now().Add(-2*time.Hour), expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token.Token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("other-key", "test-issuer", "test-audience")
	token, err := other.GenerateAccessToken(did, time.Now(), expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token.Token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "someone-else")
	token, err := other.GenerateAccessToken(did, time.Now(), expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token.Token)
	require.Error(t, err)
}

func Test_Adapter(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(did, time.Now(), expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, did, claims.DID)
	assert.Equal(t, token.JTI, claims.JTI)
}
