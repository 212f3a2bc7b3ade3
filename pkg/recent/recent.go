// Package recent remembers keys for a short window so bursts of identical
// notifications can be collapsed into one. Storage is a bounded LRU; entries
// expire lazily.
package recent

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	seenAt time.Time
}

type options struct {
	now func() time.Time
}

// Option configures a Cache.
type Option func(*options)

// WithNow replaces time.Now, for tests.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Cache is a TTL-bounded LRU set of keys. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	// ll holds *entry, front = most recently recorded
	ll       *list.List
	elements map[string]*list.Element
}

// New returns a Cache holding at most maxEntries keys for ttl each.
// maxEntries < 1 is treated as 1.
func New(maxEntries int, ttl time.Duration, opts ...Option) *Cache {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return &Cache{
		maxEntries: max(maxEntries, 1),
		ttl:        ttl,
		now:        o.now,
		ll:         list.New(),
		elements:   make(map[string]*list.Element),
	}
}

// Seen reports whether key was recorded less than ttl ago. When it was not,
// key is recorded now. A suppressed hit does not extend the window, so a
// steady stream of the same key passes once per ttl.
func (c *Cache) Seen(key string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.elements[key]; ok {
		e := elem.Value.(*entry)
		if now.Sub(e.seenAt) < c.ttl {
			return true
		}
		e.seenAt = now
		c.ll.MoveToFront(elem)
		return false
	}

	if c.ll.Len() >= c.maxEntries {
		if back := c.ll.Back(); back != nil {
			evicted := c.ll.Remove(back).(*entry)
			delete(c.elements, evicted.key)
		}
	}
	c.elements[key] = c.ll.PushFront(&entry{key: key, seenAt: now})
	return false
}

// Forget drops key. It reports whether key was present.
func (c *Cache) Forget(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.elements[key]
	if !ok {
		return false
	}
	c.ll.Remove(elem)
	delete(c.elements, key)
	return true
}

// Prune removes expired keys and returns how many were dropped.
func (c *Cache) Prune() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.ll.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if now.Sub(e.seenAt) >= c.ttl {
			c.ll.Remove(elem)
			delete(c.elements, e.key)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
