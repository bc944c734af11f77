package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	snap      Snapshot
	expiresAt time.Time
}

// MemoryCache is a per-process TTL cache with invalidation tombstones.
type MemoryCache struct {
	mu            sync.Mutex
	ttl           time.Duration
	entries       map[uint]memoryEntry
	invalidatedAt map[uint]time.Time
	now           func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:           ttl,
		entries:       make(map[uint]memoryEntry),
		invalidatedAt: make(map[uint]time.Time),
		now:           time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, userID uint) (*Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, userID)
		return nil, false, nil
	}
	snap := e.snap
	return &snap, true, nil
}

func (c *MemoryCache) Set(_ context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if inv, ok := c.invalidatedAt[snap.UserID]; ok && !snap.ReadAt.After(inv) {
		return nil
	}
	// Expiry counts from the read, so a slow reader cannot extend a stale view.
	expiresAt := snap.ReadAt.Add(c.ttl)
	if !c.now().Before(expiresAt) {
		return nil
	}
	c.entries[snap.UserID] = memoryEntry{snap: *snap, expiresAt: expiresAt}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
	c.invalidatedAt[userID] = c.now()
	return nil
}

// Purge drops expired entries and tombstones older than the TTL. A snapshot
// read before such a tombstone would already be expired on arrival.
func (c *MemoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
		}
	}
	for id, at := range c.invalidatedAt {
		if now.Sub(at) > c.ttl {
			delete(c.invalidatedAt, id)
		}
	}
}

// RunJanitor purges on every tick until ctx is done.
func (c *MemoryCache) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Purge()
		}
	}
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
