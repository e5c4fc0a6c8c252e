// ABOUTME: Seen-message cache for dropping redelivered callbacks
// ABOUTME: Entries expire after a TTL and the oldest go first at capacity

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// sweepInterval is how often expired entries are cleared in the background.
const sweepInterval = time.Minute

type entry struct {
	seenAt time.Time
	elem   *list.Element
}

// Cache remembers recently seen message ids. Entries expire after the TTL;
// when the cache is full the oldest entry is evicted. The insertion order
// lives in a linked list so eviction is O(1).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	once    sync.Once
}

// New creates a cache and starts its background sweeper. Call Close to
// stop the sweeper.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen marks key as seen and reports whether it was already present and
// unexpired. The check and the mark are one atomic step, so concurrent
// deliveries of the same message id race to a single winner.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.entries[key]; ok {
		duplicate := now.Sub(e.seenAt) < c.ttl
		e.seenAt = now
		c.order.MoveToBack(e.elem)
		return duplicate
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &entry{seenAt: now, elem: c.order.PushBack(key)}
	return false
}

// Contains reports whether key is present and unexpired, without marking.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return ok && time.Since(e.seenAt) < c.ttl
}

// evictOldest removes the entry at the front of the order list.
// Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// sweep clears expired entries until Close is called.
func (c *Cache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expire()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.seenAt) >= c.ttl {
			c.order.Remove(e.elem)
			delete(c.entries, key)
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}
