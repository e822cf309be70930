// Package revocation holds the token revocation list consulted by the bearer
// middleware. Entries are keyed by JWT ID and live no longer than the token.
package revocation

import (
	"fmt"
	"time"

	"baseid/pkg/platform/sentinel"
)

type Clock func() time.Time

// validateTTL rejects entries that would never expire or are already gone.
func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("revocation ttl %s: %w", ttl, sentinel.ErrInvalidState)
	}
	return nil
}
