package tts

import (
	"container/list"
	"sync"
	"time"

	"github.com/tutorstack/voice-gateway/internal/metrics"
)

// CacheEntry is an immutable cached synthesis result. The unified variant
// carries the viseme track alongside the audio so lip-sync replays stay
// aligned on cache hits.
type CacheEntry struct {
	Audio       []byte
	ContentType string
	Encoding    string
	Visemes     []VisemeFrame
	Compressed  bool
	// OriginalBytes is the provider output size before compression, kept so
	// telemetry for replayed hits reports real sizes.
	OriginalBytes int
	CreatedAt     time.Time
}

// CacheStats is a point-in-time snapshot for the diagnostics endpoint.
type CacheStats struct {
	Entries   int     `json:"entries"`
	Capacity  int     `json:"capacity"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

type cacheItem struct {
	key   string
	entry CacheEntry
}

// Cache is a capacity-bounded, TTL-expiring LRU keyed by request
// fingerprint. Entries are replaced whole; readers never observe a partial
// write. Eviction runs opportunistically on writes inside a short critical
// section.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	ttl       time.Duration
	ll        *list.List // front = most recently used
	index     map[string]*list.Element
	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

// NewCache creates a cache holding at most capacity entries, each expiring
// ttl after creation. A non-positive ttl disables time-based expiry.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the entry for key if present and not expired, marking it most
// recently used.
func (c *Cache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return CacheEntry{}, false
	}
	item := el.Value.(*cacheItem)
	if c.expired(item.entry) {
		c.removeElement(el)
		c.evictions++
		c.misses++
		metrics.CacheEvictions.Inc()
		return CacheEntry{}, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return item.entry, true
}

// Set stores or replaces the entry for key. Writing the same key twice is
// idempotent: the cache ends up with exactly one entry and the last writer
// wins.
func (c *Cache) Set(key string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now()
	}

	if el, ok := c.index[key]; ok {
		el.Value.(*cacheItem).entry = entry
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheItem{key: key, entry: entry})
	c.index[key] = el

	c.sweepExpired()
	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
		c.evictions++
		metrics.CacheEvictions.Inc()
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear drops every entry. Hit/miss counters survive so the diagnostics
// hit-rate stays meaningful across an operator-triggered clear.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[string]*list.Element, c.capacity)
}

// Stats returns a snapshot of occupancy and hit-rate counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{
		Entries:   c.ll.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache) expired(e CacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) >= c.ttl
}

// sweepExpired walks from the LRU end dropping expired entries. The walk is
// bounded by the capacity, which keeps the critical section short.
func (c *Cache) sweepExpired() {
	if c.ttl <= 0 {
		return
	}
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*cacheItem).entry) {
			c.removeElement(el)
			c.evictions++
			metrics.CacheEvictions.Inc()
		}
		el = prev
	}
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.index, el.Value.(*cacheItem).key)
}
