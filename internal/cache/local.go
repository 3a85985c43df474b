package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"
)

type localEntry struct {
	key      string
	storedAt time.Time
	value    json.RawMessage
}

// LocalCache is an in-process TTL cache with a capacity bound. Entries older
// than the TTL are invisible to Get and removed lazily; when the capacity is
// exceeded the least-recently-used entry is evicted. Both Get and Set mark an
// entry most-recently-used. All operations hold a single mutex, so concurrent
// callers never observe a torn entry.
type LocalCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = most recently used

	now func() time.Time
}

// NewLocalCache creates a local cache with the given options.
func NewLocalCache(opts Options) *LocalCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions().TTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultOptions().MaxEntries
	}

	return &LocalCache{
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached value for key, or false if the key is absent or its
// entry has outlived the TTL.
func (c *LocalCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*localEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores value under key, marking it most-recently-used and evicting the
// least-recently-used entry if the capacity bound is exceeded.
func (c *LocalCache) Set(_ context.Context, key string, value json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*localEntry)
		entry.storedAt = c.now()
		entry.value = value
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&localEntry{
		key:      key,
		storedAt: c.now(),
		value:    value,
	})
	c.entries[key] = elem

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*localEntry).key)
	}

	return nil
}

// Len returns the current number of entries, including any not yet lazily expired.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
