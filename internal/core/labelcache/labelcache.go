// Package labelcache provides a bounded TTL+LRU cache for normalized labels
// Keys are canonicalized via core/normalize so case and whitespace variants share a slot
package labelcache

import (
	"container/list"
	"sync"
	"time"

	"muckrake/internal/core/normalize"
)

// Entry is a cached canonicalization result, immutable once created
type Entry struct {
	OriginalValue   string  `json:"original_value"`
	NormalizedValue string  `json:"normalized_value"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
}

// Stats is a point-in-time counter snapshot
type Stats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	Size        int     `json:"size"`
	HitRate     float64 `json:"hit_rate"`
}

// DefaultMaxSize bounds the cache when the caller passes 0
const DefaultMaxSize = 100_000

// DefaultTTL expires entries when the caller passes 0
const DefaultTTL = 14 * 24 * time.Hour

// Cache is safe for concurrent use; the mutex is held only for map and list
// mutations, never across I/O
type Cache struct {
	mu sync.Mutex

	maxSize int
	ttl     time.Duration

	ll    *list.List // front = most recently used
	items map[string]*list.Element

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	now func() time.Time // test seam
}

type slot struct {
	key       string
	val       Entry
	createdAt time.Time
}

// New constructs a Cache with the given capacity and TTL
// Zero or negative values fall back to the documented defaults
func New(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns the entry for a raw label, or absent
// An expired entry is removed, counted as an expiration, and reported as a miss
func (c *Cache) Get(raw string) (Entry, bool) {
	k := normalize.Key(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[k]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	s := el.Value.(*slot)
	if c.now().Sub(s.createdAt) > c.ttl {
		// stale data is never returned
		c.ll.Remove(el)
		delete(c.items, k)
		c.expirations++
		c.misses++
		return Entry{}, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return s.val, true
}

// GetMany returns the subset of raw labels present in the cache, keyed by the
// raw label as given so callers can match hits back to their inputs
func (c *Cache) GetMany(raws []string) map[string]Entry {
	out := make(map[string]Entry, len(raws))
	for _, raw := range raws {
		if v, ok := c.Get(raw); ok {
			out[raw] = v
		}
	}
	return out
}

// Set stores an entry under the raw label's canonical key
// Insertion at capacity evicts the least-recently-used entry first
func (c *Cache) Set(raw string, v Entry) {
	k := normalize.Key(raw)
	if k == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[k]; ok {
		s := el.Value.(*slot)
		s.val = v
		s.createdAt = c.now()
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.maxSize {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*slot).key)
			c.evictions++
		}
	}

	c.items[k] = c.ll.PushFront(&slot{key: k, val: v, createdAt: c.now()})
}

// SetMany stores every entry in the map, keyed by its raw label
func (c *Cache) SetMany(m map[string]Entry) {
	for raw, v := range m {
		c.Set(raw, v)
	}
}

// Stats returns a snapshot of the counters
// HitRate is hits/(hits+misses), 0 when the cache has never been read
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Size:        c.ll.Len(),
		HitRate:     rate,
	}
}
