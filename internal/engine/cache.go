package engine

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultCacheTTL is the staleness window for cached verdicts.
	DefaultCacheTTL = 300_000 * time.Millisecond
	// DefaultCacheCapacity is the maximum number of cached URLs.
	DefaultCacheCapacity = 100
)

// ResultCache is a bounded URL -> verdict cache with a staleness window.
//
// Eviction is insertion-order FIFO, not LRU: reads never reorder entries and
// overwriting an existing URL keeps its original position. Stale entries are
// skipped on Get but only removed when overwritten or evicted.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element // url -> element holding *cacheEntry
	order    *list.List               // front = oldest insertion
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

type cacheEntry struct {
	url        string
	verdict    *Verdict
	capturedAt time.Time
}

// NewResultCache creates a cache holding at most capacity entries, each
// usable for ttl after it was stored.
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	if capacity < 1 {
		capacity = DefaultCacheCapacity
	}
	return &ResultCache{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the cached verdict for url if it is younger than the TTL.
func (c *ResultCache) Get(url string) *Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[url]
	if !ok {
		return nil
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.capturedAt) >= c.ttl {
		return nil
	}
	return entry.verdict
}

// Put stores verdict under the exact url string. When a new url would push
// the cache past capacity, the oldest-inserted entry is evicted first.
func (c *ResultCache) Put(url string, verdict *Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{url: url, verdict: verdict, capturedAt: c.now()}

	if el, ok := c.entries[url]; ok {
		el.Value = entry
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).url)
	}
	c.entries[url] = c.order.PushBack(entry)
}

// Len returns the number of entries, fresh or stale.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Contains reports whether url has an entry, fresh or stale.
func (c *ResultCache) Contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[url]
	return ok
}
