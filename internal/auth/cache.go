package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache is a TTL-based in-memory cache of tokens that passed verification.
// Uses sync.Map for lock-free reads on the hot path.
//
// Stale-while-revalidate: when an entry expires, Get() still reports a hit
// and signals that a background re-verification is needed, so no request
// blocks on bcrypt after the first one.
type AuthCache struct {
	store sync.Map      // map[string]*cacheEntry
	ttl   time.Duration // Default: 30s
}

type cacheEntry struct {
	expiresAt  time.Time
	refreshing atomic.Bool // prevents duplicate background refreshes
}

// NewAuthCache creates a cache with the given TTL.
func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl}
}

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Hit          bool // true if the token was verified before (fresh or stale)
	NeedsRefresh bool // true if the entry is expired and should be re-verified in the background
}

// Get looks up the token in the cache.
//
// Returns:
//   - Fresh hit:  {Hit=true,  NeedsRefresh=false}
//   - Stale hit:  {Hit=true,  NeedsRefresh=true}  (accept, re-verify in background)
//   - Miss:       {Hit=false, NeedsRefresh=false}
//
// The refreshing flag is set atomically so only one goroutine refreshes per token.
func (c *AuthCache) Get(token string) GetResult {
	val, ok := c.store.Load(token)
	if !ok {
		return GetResult{}
	}

	entry := val.(*cacheEntry)

	if time.Now().Before(entry.expiresAt) {
		return GetResult{Hit: true}
	}

	// Stale hit: CompareAndSwap ensures only one goroutine triggers the refresh.
	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return GetResult{Hit: true, NeedsRefresh: needsRefresh}
}

// Set marks token as verified for the configured TTL.
func (c *AuthCache) Set(token string) {
	c.store.Store(token, &cacheEntry{expiresAt: time.Now().Add(c.ttl)})
}

// Delete removes an entry from the cache.
func (c *AuthCache) Delete(token string) {
	c.store.Delete(token)
}
