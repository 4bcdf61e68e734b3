package rbac

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"moss.dev/internal/obs"
)

// DefaultCacheTTL bounds how long a cached permission snapshot is served
// without revisiting storage. Writes invalidate eagerly; the TTL is the
// backstop for invalidations this process never saw.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	snap      *snapshot
	expiresAt time.Time
}

// snapshotCache holds one permission snapshot per person. Concurrent loads
// for the same person collapse into a single storage round trip.
type snapshotCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
}

func newSnapshotCache(ttl time.Duration, now func() time.Time) *snapshotCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &snapshotCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *snapshotCache) get(ctx context.Context, personID string, load func(context.Context, string) (*snapshot, error)) (*snapshot, error) {
	c.mu.Lock()
	if entry, ok := c.entries[personID]; ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		obs.PermissionCacheLookup("hit")
		return entry.snap, nil
	}
	c.mu.Unlock()
	obs.PermissionCacheLookup("miss")

	v, err, _ := c.group.Do(personID, func() (any, error) {
		snap, err := load(ctx, personID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[personID] = cacheEntry{snap: snap, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

func (c *snapshotCache) invalidatePerson(personID string) {
	c.mu.Lock()
	delete(c.entries, personID)
	c.mu.Unlock()
}

func (c *snapshotCache) invalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
