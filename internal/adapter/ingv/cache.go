package ingv

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
	"github.com/couchcryptid/quake-map-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedSource wraps a Source with an in-memory LRU cache whose entries
// expire after a fixed TTL.
type CachedSource struct {
	inner   Source
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a source. A nil clock
// uses the real clock.
func NewCachedSource(inner Source, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedSource) Query(ctx context.Context, q Query) ([]domain.Feature, error) {
	key := q.Values().Encode()
	features, status := c.cache.get(key)
	c.metrics.FeedCache.WithLabelValues(status).Inc()
	if status == cacheHit {
		return features, nil
	}

	features, err := c.inner.Query(ctx, q)
	if err != nil {
		return features, err
	}
	// Only cache non-empty results so a quiet window is re-queried.
	if len(features) > 0 {
		c.cache.put(key, features)
	}
	return features, nil
}

const (
	cacheHit     = "hit"
	cacheMiss    = "miss"
	cacheExpired = "expired"
)

// lruCache is a thread-safe LRU cache of query results with a per-entry TTL.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key     string
	value   []domain.Feature
	expires time.Time
	prev    *entry
	next    *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

// get returns the cached value and one of cacheHit, cacheMiss, or
// cacheExpired. Expired entries are removed.
func (c *lruCache) get(key string) ([]domain.Feature, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, cacheMiss
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		c.remove(e)
		return nil, cacheExpired
	}
	c.moveToFront(e)
	return e.value, cacheHit
}

func (c *lruCache) put(key string, value []domain.Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
