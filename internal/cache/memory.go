package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	elem      *list.Element
}

// MemoryCache is a process-local cache. When full, the entry inserted
// earliest is evicted regardless of how often it is read.
type MemoryCache[V any] struct {
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*memoryEntry[V]
	order   *list.List
}

// NewMemoryCache creates a MemoryCache.
func NewMemoryCache[V any](opts Options) *MemoryCache[V] {
	return &MemoryCache[V]{
		opts:    opts,
		now:     time.Now,
		entries: make(map[string]*memoryEntry[V]),
		order:   list.New(),
	}
}

// WithClock replaces the time source. Used by tests.
func (c *MemoryCache[V]) WithClock(now func() time.Time) *MemoryCache[V] {
	c.now = now
	return c
}

func (c *MemoryCache[V]) Get(_ context.Context, key string) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.remove(e)
		return zero, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache[V]) Set(_ context.Context, key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Overwriting counts as a fresh insertion.
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}

	for c.opts.Capacity > 0 && len(c.entries) >= c.opts.Capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*memoryEntry[V]))
	}

	e := &memoryEntry[V]{key: key, value: value, expiresAt: c.now().Add(c.opts.TTL)}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e
	return nil
}

func (c *MemoryCache[V]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache[V]) remove(e *memoryEntry[V]) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}
