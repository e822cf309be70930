// Package resolver caches DID resolutions in two levels: an in-process
// go-cache and an optional shared memcached.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/patrickmn/go-cache"

	"baseid/internal/did/models"
)

const keyPrefix = "baseid:did:"

// SharedLocalTTL caps the in-process level when memcached is shared. An
// Invalidate on one instance reaches the others only through memcached, so
// this is how long another instance may still serve the old resolution.
const SharedLocalTTL = 5 * time.Second

// Remote is the memcached subset the cache uses.
type Remote interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
}

type Cache struct {
	local    *cache.Cache
	remote   Remote
	ttl      time.Duration
	localTTL time.Duration
	logger   *slog.Logger
}

type Option func(*Cache)

// WithRemote adds a shared second level, typically *memcache.Client.
func WithRemote(remote Remote) Option {
	return func(c *Cache) {
		c.remote = remote
	}
}

// WithLocalTTL overrides how long the in-process level keeps an entry.
func WithLocalTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.localTTL = ttl
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a cache keeping entries for ttl. With a remote level the
// in-process level defaults to min(ttl, SharedLocalTTL).
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.localTTL <= 0 {
		c.localTTL = ttl
		if c.remote != nil {
			c.localTTL = min(ttl, SharedLocalTTL)
		}
	}
	c.local = cache.New(c.localTTL, 2*c.localTTL)
	return c
}

// Get returns a cached resolution. Remote failures are logged and treated
// as misses.
func (c *Cache) Get(ctx context.Context, did string) (*models.Resolution, bool) {
	if v, ok := c.local.Get(did); ok {
		return v.(*models.Resolution), true
	}
	if c.remote == nil {
		return nil, false
	}
	item, err := c.remote.Get(keyPrefix + did)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			c.logger.WarnContext(ctx, "memcache get failed", "error", err, "did", did)
		}
		return nil, false
	}
	var res models.Resolution
	if err := json.Unmarshal(item.Value, &res); err != nil {
		c.logger.WarnContext(ctx, "memcache entry undecodable", "error", err, "did", did)
		return nil, false
	}
	c.local.Set(did, &res, cache.DefaultExpiration)
	return &res, true
}

func (c *Cache) Set(ctx context.Context, did string, res *models.Resolution) {
	c.local.Set(did, res, cache.DefaultExpiration)
	if c.remote == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		c.logger.WarnContext(ctx, "resolution not cacheable", "error", err, "did", did)
		return
	}
	if err := c.remote.Set(&memcache.Item{Key: keyPrefix + did, Value: raw, Expiration: int32(c.ttl.Seconds())}); err != nil {
		c.logger.WarnContext(ctx, "memcache set failed", "error", err, "did", did)
	}
}

// Invalidate drops did from both levels.
func (c *Cache) Invalidate(ctx context.Context, did string) {
	c.local.Delete(did)
	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(keyPrefix + did); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		c.logger.WarnContext(ctx, "memcache delete failed", "error", err, "did", did)
	}
}
