package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/scheduler"
)

// PolicySource resolves tenant booking policies. Reads for slot previews go
// through a short lived cache; booking writes always read the store.
type PolicySource struct {
	policies persistence.PolicyRepository
	location *time.Location
	cache    *policyCache
}

// NewPolicySource returns a source reading from policies. loc decides calendar
// dates for every resolved policy.
func NewPolicySource(policies persistence.PolicyRepository, loc *time.Location, ttl time.Duration, now func() time.Time) *PolicySource {
	if loc == nil {
		loc = time.UTC
	}
	return &PolicySource{policies: policies, location: loc, cache: newPolicyCache(ttl, 256, now)}
}

// Location returns the zone used for calendar dates.
func (p *PolicySource) Location() *time.Location {
	if p == nil || p.location == nil {
		return time.UTC
	}
	return p.location
}

// Resolve returns the cached policy of tenantID. A nil policy with a nil
// error means booking is not enabled for the tenant.
func (p *PolicySource) Resolve(ctx context.Context, tenantID string) (*scheduler.Policy, error) {
	if entry, ok := p.cache.Get(tenantID); ok {
		return p.convert(entry), nil
	}
	return p.load(ctx, tenantID)
}

// ResolveFresh bypasses the cache.
func (p *PolicySource) ResolveFresh(ctx context.Context, tenantID string) (*scheduler.Policy, error) {
	return p.load(ctx, tenantID)
}

// Invalidate drops the cached policy of tenantID.
func (p *PolicySource) Invalidate(tenantID string) {
	p.cache.Delete(tenantID)
}

func (p *PolicySource) load(ctx context.Context, tenantID string) (*scheduler.Policy, error) {
	stored, err := p.policies.GetPolicy(ctx, tenantID)
	if errors.Is(err, persistence.ErrNotFound) {
		p.cache.Store(tenantID, policyCacheEntry{})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry := policyCacheEntry{policy: stored, found: true}
	p.cache.Store(tenantID, entry)
	return p.convert(entry), nil
}

func (p *PolicySource) convert(entry policyCacheEntry) *scheduler.Policy {
	if !entry.found {
		return nil
	}
	return enginePolicy(entry.policy, p.Location())
}

type policyCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]policyCacheEntry
}

type policyCacheEntry struct {
	policy    persistence.BookingPolicy
	found     bool
	expiresAt time.Time
}

func newPolicyCache(ttl time.Duration, maxEntries int, now func() time.Time) *policyCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &policyCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]policyCacheEntry),
	}
}

func (c *policyCache) Get(key string) (policyCacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return policyCacheEntry{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.Delete(key)
		return policyCacheEntry{}, false
	}
	return entry, true
}

func (c *policyCache) Store(key string, entry policyCacheEntry) {
	entry.expiresAt = c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = entry
}

func (c *policyCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *policyCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *policyCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
