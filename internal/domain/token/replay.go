package token

import (
	"context"
	"sync"
	"time"
)

// ReplayCache records consumed signatures until their expiry.
type ReplayCache interface {
	// SeenAndRecord atomically checks whether sig was already consumed and
	// records it with the given expiry if not. Returns true if it was seen.
	SeenAndRecord(ctx context.Context, sig string, expiry time.Time) bool

	// PurgeExpired drops every entry whose expiry is not after now and
	// returns how many were removed.
	PurgeExpired(now time.Time) int

	Size() int
}

// inMemoryReplayCache keeps signature -> expiry. Entries leave only through
// PurgeExpired; there is no size-based eviction, so a purged-too-late entry
// can never be replayed early.
type inMemoryReplayCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewInMemoryReplayCache creates an empty cache.
func NewInMemoryReplayCache() ReplayCache {
	return &inMemoryReplayCache{entries: make(map[string]time.Time)}
}

func (c *inMemoryReplayCache) SeenAndRecord(_ context.Context, sig string, expiry time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[sig]; exists {
		return true
	}
	c.entries[sig] = expiry
	return false
}

func (c *inMemoryReplayCache) PurgeExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for sig, exp := range c.entries {
		if !exp.After(now) {
			delete(c.entries, sig)
			removed++
		}
	}
	return removed
}

func (c *inMemoryReplayCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
