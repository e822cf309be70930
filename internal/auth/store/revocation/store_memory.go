package revocation

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// InMemoryTRL keeps revoked JTIs in an expiring map. Single instance only.
type InMemoryTRL struct {
	entries *gocache.Cache
}

func NewInMemoryTRL() *InMemoryTRL {
	return &InMemoryTRL{entries: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (t *InMemoryTRL) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	t.entries.Set(jti, struct{}{}, ttl)
	return nil
}

func (t *InMemoryTRL) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := t.entries.Get(jti)
	return ok, nil
}
