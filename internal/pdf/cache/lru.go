// Package cache provides a small thread-safe LRU cache used to reuse
// detection results for templates that have not changed.
package cache

import (
	"sync"
)

// LRU is a thread-safe least recently used cache
type LRU[V any] struct {
	mutex    sync.Mutex
	capacity int
	items    map[string]*node[V]
	head     *node[V] // sentinel before the most recently used entry
	tail     *node[V] // sentinel after the least recently used entry
	hits     int64
	misses   int64
}

type node[V any] struct {
	key   string
	value V
	prev  *node[V]
	next  *node[V]
}

// Stats reports how well the cache is doing
type Stats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate_percent"`
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
}

// DefaultCapacity is used when a non-positive capacity is requested
const DefaultCapacity = 64

// New creates a cache holding at most capacity entries
func New[V any](capacity int) *LRU[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &LRU[V]{
		capacity: capacity,
		items:    make(map[string]*node[V]),
		head:     &node[V]{},
		tail:     &node[V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the value for key and marks it as recently used
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n, ok := c.items[key]; ok {
		c.unlink(n)
		c.pushFront(n)
		c.hits++
		return n.value, true
	}
	c.misses++
	var zero V
	return zero, false
}

// Put stores value under key, evicting the least recently used entry when full
func (c *LRU[V]) Put(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n, ok := c.items[key]; ok {
		n.value = value
		c.unlink(n)
		c.pushFront(n)
		return
	}

	n := &node[V]{key: key, value: value}
	c.pushFront(n)
	c.items[key] = n
	if len(c.items) > c.capacity {
		lru := c.tail.prev
		c.unlink(lru)
		delete(c.items, lru.key)
	}
}

// Remove drops key from the cache
func (c *LRU[V]) Remove(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	n, ok := c.items[key]
	if !ok {
		return false
	}
	c.unlink(n)
	delete(c.items, key)
	return true
}

// Len returns the number of cached entries
func (c *LRU[V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// Stats returns hit and miss counters
func (c *LRU[V]) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := c.hits + c.misses
	rate := float64(0)
	if total > 0 {
		rate = float64(c.hits) / float64(total) * 100
	}
	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  rate,
		Size:     len(c.items),
		Capacity: c.capacity,
	}
}

func (c *LRU[V]) pushFront(n *node[V]) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRU[V]) unlink(n *node[V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
}
