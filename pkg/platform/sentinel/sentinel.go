// Package sentinel holds the store-level errors. Stores return them, possibly
// wrapped, and services turn them into domain errors with a kind attached.
package sentinel

import "errors"

var (
	// ErrNotFound: no DID, credential, challenge or privacy record for the key.
	ErrNotFound = errors.New("not found")
	// ErrExpired: the challenge outlived its TTL.
	ErrExpired = errors.New("expired")
	// ErrAlreadyUsed: a single-use value was consumed, such as an
	// authentication nonce or a presentation challenge.
	ErrAlreadyUsed = errors.New("already used")
	// ErrInvalidState: the record cannot take the requested change.
	ErrInvalidState = errors.New("invalid state")
)
