package weathercache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harborfresh/order-forecast/internal/domain"
	"github.com/harborfresh/order-forecast/internal/observability"
)

// CachedLookup wraps a WeatherLookup with an in-memory LRU cache. Batches
// for the same date hit the same store-day keys across scenarios, so even a
// small cache removes most database round trips.
type CachedLookup struct {
	inner   domain.WeatherLookup
	cache   *lruCache
	metrics *observability.Metrics
}

// New creates a cache decorator around a weather lookup.
func New(inner domain.WeatherLookup, maxEntries int, metrics *observability.Metrics) *CachedLookup {
	return &CachedLookup{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedLookup) Lookup(ctx context.Context, storeNo int, date time.Time) (domain.WeatherObservation, bool, error) {
	key := fmt.Sprintf("%d|%s", storeNo, date.Format("2006-01-02"))
	if cached, ok := c.cache.get(key); ok {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return cached.obs, cached.found, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	start := time.Now()
	obs, found, err := c.inner.Lookup(ctx, storeNo, date)
	if err != nil {
		return obs, found, err
	}
	c.metrics.WeatherLookupTiming.Observe(time.Since(start).Seconds())

	// Misses are cached too: a store-day with no observation stays that way
	// for the life of a processing run.
	c.cache.put(key, cachedObservation{obs: obs, found: found})
	return obs, found, nil
}

type cachedObservation struct {
	obs   domain.WeatherObservation
	found bool
}

// lruCache is a simple thread-safe LRU cache for weather observations.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value cachedObservation
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (cachedObservation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cachedObservation{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value cachedObservation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
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
