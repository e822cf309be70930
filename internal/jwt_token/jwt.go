package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "baseid/pkg/domain-errors"
)

// Claims are the access token claims. The subject is the authenticated DID.
type Claims struct {
	jwt.RegisteredClaims
}

// DID returns the authenticated DID.
func (c *Claims) DID() string {
	return c.Subject
}

// JWTService issues and validates HS256 access tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// AccessToken is a signed token and the values the caller needs to track it.
type AccessToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

func (s *JWTService) GenerateAccessToken(did string, now time.Time, expiresIn time.Duration) (AccessToken, error) {
	jti := uuid.NewString()
	expiresAt := now.Add(expiresIn)
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   did,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        jti,
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signedToken, JTI: jti, ExpiresAt: expiresAt}, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, authErr(dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
		}
		return nil, authErr(dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	}

	if !parsed.Valid {
		return nil, authErr(dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" || claims.ID == "" {
		return nil, authErr(dErrors.New(dErrors.CodeUnauthorized, "invalid token claims"))
	}

	return claims, nil
}

func authErr(err *dErrors.Error) *dErrors.Error {
	return err.In(dErrors.KindAuthentication)
}
