// Package cache provides a bounded result cache with insertion-order eviction.
package cache

import (
	"container/list"
	"fmt"

	"github.com/Tutortoise/drowsiness-service/fingerprint"
	"github.com/Tutortoise/drowsiness-service/models"
)

// DefaultCapacity is the number of results kept.
const DefaultCapacity = 100

type entry struct {
	key   fingerprint.Fingerprint
	value models.Result
}

// FIFO maps fingerprints to results. When full, the oldest inserted entry
// is evicted; reads never change an entry's position.
// It is not safe for concurrent use; the owner serializes access.
type FIFO struct {
	capacity int
	order    *list.List
	items    map[fingerprint.Fingerprint]*list.Element

	hits      int64
	misses    int64
	evictions int64
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

func New(capacity int) *FIFO {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFO{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[fingerprint.Fingerprint]*list.Element, capacity),
	}
}

// Get returns the stored result for key.
func (c *FIFO) Get(key fingerprint.Fingerprint) (models.Result, bool) {
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return models.Result{}, false
	}
	c.hits++
	return el.Value.(*entry).value, true
}

// Peek is Get without counting a hit or a miss.
func (c *FIFO) Peek(key fingerprint.Fingerprint) (models.Result, bool) {
	el, ok := c.items[key]
	if !ok {
		return models.Result{}, false
	}
	return el.Value.(*entry).value, true
}

// Contains reports whether key is cached without touching the counters.
func (c *FIFO) Contains(key fingerprint.Fingerprint) bool {
	_, ok := c.items[key]
	return ok
}

// Put stores value under key. An existing key keeps its position.
// It returns the evicted key, if any.
func (c *FIFO) Put(key fingerprint.Fingerprint, value models.Result) (evicted fingerprint.Fingerprint, ok bool) {
	if el, exists := c.items[key]; exists {
		el.Value.(*entry).value = value
		return evicted, false
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		e := c.order.Remove(oldest).(*entry)
		delete(c.items, e.key)
		c.evictions++
		evicted, ok = e.key, true
	}

	c.items[key] = c.order.PushBack(&entry{key: key, value: value})
	return evicted, ok
}

func (c *FIFO) Len() int { return c.order.Len() }

func (c *FIFO) Cap() int { return c.capacity }

// Keys returns the cached keys, oldest first.
func (c *FIFO) Keys() []fingerprint.Fingerprint {
	keys := make([]fingerprint.Fingerprint, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

func (c *FIFO) Stats() Stats {
	s := Stats{
		Size:      c.order.Len(),
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

// Verify checks that the order list and the index agree.
func (c *FIFO) Verify() error {
	if c.order.Len() != len(c.items) {
		return fmt.Errorf("%w: order has %d entries, index has %d", models.ErrCacheInvariant, c.order.Len(), len(c.items))
	}
	if c.order.Len() > c.capacity {
		return fmt.Errorf("%w: size %d exceeds capacity %d", models.ErrCacheInvariant, c.order.Len(), c.capacity)
	}
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if c.items[e.key] != el {
			return fmt.Errorf("%w: key %s is not indexed", models.ErrCacheInvariant, e.key.Short())
		}
	}
	return nil
}
