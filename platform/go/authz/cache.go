package authz

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache defaults; overridable through CacheConfig.
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheMaxSize = 10000
)

// CacheKey identifies one resolved permission context. TenantID is uuid.Nil
// for legacy single-tenant users.
type CacheKey struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// CacheConfig controls the permission cache behavior.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	MaxSize int
}

// cacheEntry tags the stored context with its owning tenant, role and the
// store ids it was computed against, so tag-based invalidation is a linear
// scan filtered by tag match. Acceptable given the small bounded capacity.
type cacheEntry struct {
	context    *Context
	tenantID   uuid.UUID
	role       string
	storeIDs   []uuid.UUID
	insertedAt time.Time
}

// CacheStats holds hit/miss counters for diagnostics.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Cache is a capacity- and TTL-bounded permission cache. Entries expire TTL
// after insertion regardless of access; at capacity the least recently used
// entry is evicted.
type Cache struct {
	enabled bool
	lru     *expirable.LRU[CacheKey, cacheEntry]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache builds a Cache. A disabled cache accepts every call and caches
// nothing.
func NewCache(cfg CacheConfig) *Cache {
	if !cfg.Enabled {
		return &Cache{}
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	size := cfg.MaxSize
	if size <= 0 {
		size = DefaultCacheMaxSize
	}

	return &Cache{
		enabled: true,
		lru:     expirable.NewLRU[CacheKey, cacheEntry](size, nil, ttl),
	}
}

// Get returns the cached context, or nil on miss/expiry.
func (c *Cache) Get(key CacheKey) (*Context, bool) {
	if !c.enabled {
		return nil, false
	}

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return entry.context, true
}

// Set stores a resolved context tagged for selective invalidation.
func (c *Cache) Set(key CacheKey, pctx *Context) {
	if !c.enabled || pctx == nil {
		return
	}

	c.lru.Add(key, cacheEntry{
		context:    pctx,
		tenantID:   key.TenantID,
		role:       pctx.Role,
		storeIDs:   append([]uuid.UUID(nil), pctx.AssignedStores...),
		insertedAt: time.Now(),
	})
}

// InvalidateUser drops the entry for one user, scoped to a tenant when given.
// Unknown keys are a no-op.
func (c *Cache) InvalidateUser(userID uuid.UUID, tenantID *uuid.UUID) {
	if !c.enabled {
		return
	}

	if tenantID != nil {
		c.lru.Remove(CacheKey{UserID: userID, TenantID: *tenantID})
		return
	}
	for _, key := range c.lru.Keys() {
		if key.UserID == userID {
			c.lru.Remove(key)
		}
	}
}

// InvalidateTenant drops every entry belonging to the tenant.
func (c *Cache) InvalidateTenant(tenantID uuid.UUID) {
	if !c.enabled {
		return
	}
	for _, key := range c.lru.Keys() {
		if key.TenantID == tenantID {
			c.lru.Remove(key)
		}
	}
}

// InvalidateByRole drops entries resolved for the role, scoped to a tenant
// when given. Used after a role's default permissions change.
func (c *Cache) InvalidateByRole(role string, tenantID *uuid.UUID) {
	if !c.enabled {
		return
	}
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok || entry.role != role {
			continue
		}
		if tenantID != nil && entry.tenantID != *tenantID {
			continue
		}
		c.lru.Remove(key)
	}
}

// InvalidateByStore drops entries computed against the store, scoped to a
// tenant when given. Used after store assignments or store permissions change.
func (c *Cache) InvalidateByStore(storeID uuid.UUID, tenantID *uuid.UUID) {
	if !c.enabled {
		return
	}
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if tenantID != nil && entry.tenantID != *tenantID {
			continue
		}
		for _, id := range entry.storeIDs {
			if id == storeID {
				c.lru.Remove(key)
				break
			}
		}
	}
}

// Purge empties the cache.
func (c *Cache) Purge() {
	if c.enabled {
		c.lru.Purge()
	}
}

// Stats returns hit/miss counters and the current size.
func (c *Cache) Stats() CacheStats {
	stats := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if c.enabled {
		stats.Size = c.lru.Len()
	}
	return stats
}
