// Package answercache provides the bounded store that lets repeated analyses
// of the same image skip model calls. Entries are evicted in insertion order.
package answercache

import (
	"slices"
	"sync"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 10

// Key identifies one image asked one ordered list of questions.
type Key struct {
	Image     uint64
	Questions uint64
}

// Hooks receives cache events. Nil fields are skipped.
type Hooks struct {
	OnHit   func()
	OnMiss  func()
	OnEvict func()
}

// Cache is a fixed-capacity FIFO map. A single mutex guards every operation.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]V
	order    []Key // oldest first
	hooks    Hooks
}

// New creates a cache holding at most capacity entries.
func New[V any](capacity int, hooks Hooks) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[V]{
		capacity: capacity,
		entries:  make(map[Key]V, capacity),
		order:    make([]Key, 0, capacity),
		hooks:    hooks,
	}
}

// Get returns the value stored for k.
func (c *Cache[V]) Get(k Key) (V, bool) {
	c.mu.Lock()
	v, ok := c.entries[k]
	c.mu.Unlock()

	if ok {
		call(c.hooks.OnHit)
	} else {
		call(c.hooks.OnMiss)
	}
	return v, ok
}

// Put stores v under k. Inserting a new key into a full cache first evicts the
// oldest inserted entry; overwriting an existing key keeps its position.
func (c *Cache[V]) Put(k Key, v V) {
	c.mu.Lock()
	if _, ok := c.entries[k]; ok {
		c.entries[k] = v
		c.mu.Unlock()
		return
	}

	evicted := false
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = slices.Delete(c.order, 0, 1)
		delete(c.entries, oldest)
		evicted = true
	}
	c.entries[k] = v
	c.order = append(c.order, k)
	c.mu.Unlock()

	if evicted {
		call(c.hooks.OnEvict)
	}
}

// Len returns the current number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the configured bound.
func (c *Cache[V]) Capacity() int {
	return c.capacity
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
