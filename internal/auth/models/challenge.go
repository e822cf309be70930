package models

import "time"

// Challenge is a single-use nonce a DID controller signs to authenticate.
type Challenge struct {
	DID       string    `json:"did"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired reports whether the challenge can no longer be answered at now.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AuthenticationResult is returned after a successful challenge response.
type AuthenticationResult struct {
	DID       string    `json:"did"`
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}
