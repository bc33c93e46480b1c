package rbac

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how stale a cached permission set may be.
const DefaultCacheTTL = 5 * time.Minute

// PermissionSource resolves a user's permissions from the authoritative store.
type PermissionSource interface {
	Resolve(ctx context.Context, userID int64) (EffectivePermissionSet, error)
}

// PermissionCache is the surface callers depend on, so the in-memory
// implementation can later be swapped for a shared one without touching them.
type PermissionCache interface {
	Get(ctx context.Context, userID int64, forceRefresh bool) (EffectivePermissionSet, error)
	Invalidate(userID int64)
	Clear()
}

// CacheStats receives hit/miss signals for metrics. Implementations must be
// safe for concurrent use.
type CacheStats interface {
	PermissionCacheHit()
	PermissionCacheMiss()
}

// Cache is a single-process TTL cache of effective permission sets keyed by
// user id. It is not coherent across instances; staleness is bounded by the
// TTL or by explicit invalidation.
type Cache struct {
	source PermissionSource
	ttl    time.Duration
	clock  func() time.Time
	stats  CacheStats

	mu      sync.RWMutex
	entries map[int64]EffectivePermissionSet
	group   singleflight.Group
}

// NewCache constructs a Cache. A non-positive ttl falls back to
// DefaultCacheTTL. stats may be nil.
func NewCache(source PermissionSource, ttl time.Duration, stats CacheStats) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		clock:   time.Now,
		stats:   stats,
		entries: make(map[int64]EffectivePermissionSet),
	}
}

// Get returns the cached permission set when fresh, otherwise resolves from
// the authoritative store. Concurrent misses for the same user share one
// resolution. Resolution failures propagate so callers fail closed.
func (c *Cache) Get(ctx context.Context, userID int64, forceRefresh bool) (EffectivePermissionSet, error) {
	if !forceRefresh {
		if set, ok := c.lookup(userID); ok {
			c.hit()
			return set, nil
		}
	}
	c.miss()

	v, err, _ := c.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		if !forceRefresh {
			// Another request may have populated the entry while this one
			// waited on the flight group.
			if set, ok := c.lookup(userID); ok {
				return set, nil
			}
		}
		set, err := c.source.Resolve(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[userID] = set
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return EffectivePermissionSet{}, err
	}
	return v.(EffectivePermissionSet), nil
}

// Can reports whether the user holds the (resource, action) permission.
func (c *Cache) Can(ctx context.Context, userID int64, resource, action string) (bool, error) {
	set, err := c.Get(ctx, userID, false)
	if err != nil {
		return false, err
	}
	return set.Has(resource, action), nil
}

// CanAll reports whether the user holds every one of the given checks.
func (c *Cache) CanAll(ctx context.Context, userID int64, checks []Check) (bool, error) {
	set, err := c.Get(ctx, userID, false)
	if err != nil {
		return false, err
	}
	for _, check := range checks {
		if !set.Has(check.Resource, check.Action) {
			return false, nil
		}
	}
	return true, nil
}

// CanAny reports whether the user holds at least one of the given checks.
func (c *Cache) CanAny(ctx context.Context, userID int64, checks []Check) (bool, error) {
	set, err := c.Get(ctx, userID, false)
	if err != nil {
		return false, err
	}
	for _, check := range checks {
		if set.Has(check.Resource, check.Action) {
			return true, nil
		}
	}
	return false, nil
}

// HasRole reports whether the user is a member of the named role.
func (c *Cache) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	set, err := c.Get(ctx, userID, false)
	if err != nil {
		return false, err
	}
	return set.HasRole(roleName), nil
}

// Invalidate drops the single cached entry; the next Get recomputes
// regardless of remaining TTL.
func (c *Cache) Invalidate(userID int64) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(userID, 10))
}

// Clear drops every cached entry. Called whenever a role's permission
// membership changes: there is no reverse index from role to affected users,
// so the invalidation is deliberately coarse.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[int64]EffectivePermissionSet)
	c.mu.Unlock()
}

func (c *Cache) lookup(userID int64) (EffectivePermissionSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.entries[userID]
	if !ok || c.clock().Sub(set.CachedAt) >= c.ttl {
		return EffectivePermissionSet{}, false
	}
	return set, true
}

func (c *Cache) hit() {
	if c.stats != nil {
		c.stats.PermissionCacheHit()
	}
}

func (c *Cache) miss() {
	if c.stats != nil {
		c.stats.PermissionCacheMiss()
	}
}
