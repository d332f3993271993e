// ABOUTME: Thread-safe TTL cache of client message IDs, scoped per sender
// ABOUTME: Lets the socket layer drop a resent sendMessage without persisting it twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Key identifies one client-side send attempt.
type Key struct {
	SenderID        int64
	ClientMessageID string
}

type entry struct {
	key    Key
	seenAt time.Time
}

// Cache remembers claimed keys for a fixed TTL, holding at most maxSize of
// them. Entries sit in a list ordered by claim time, so expiry and eviction
// both pop from the front.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweeper. Call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := newCache(ttl, maxSize, time.Now)
	go c.sweepLoop(min(ttl, time.Minute))
	return c
}

func newCache(ttl time.Duration, maxSize int, now func() time.Time) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[Key]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
}

// Claim records senderID's clientMessageID and reports whether it was new.
// A false return means the same sender used the same ID within the TTL and
// the request should be treated as a duplicate. Check and insert happen
// under one lock, so two racing resends cannot both win.
func (c *Cache) Claim(senderID int64, clientMessageID string) bool {
	key := Key{SenderID: senderID, ClientMessageID: clientMessageID}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		if now.Sub(e.seenAt) < c.ttl {
			return false
		}
		// Expired but not swept yet; reclaim it.
		c.order.Remove(elem)
		delete(c.entries, key)
	}

	for len(c.entries) >= c.maxSize {
		c.removeFront()
	}

	c.entries[key] = c.order.PushBack(&entry{key: key, seenAt: now})
	return true
}

// Release forgets a claim, letting the client retry with the same ID.
// Used when the send it guarded was rejected.
func (c *Cache) Release(senderID int64, clientMessageID string) {
	key := Key{SenderID: senderID, ClientMessageID: clientMessageID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeFront() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.entries, front.Value.(*entry).key)
}

// sweep drops expired entries from the front of the list.
func (c *Cache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for front := c.order.Front(); front != nil; front = c.order.Front() {
		if now.Sub(front.Value.(*entry).seenAt) < c.ttl {
			return
		}
		c.removeFront()
	}
}

func (c *Cache) sweepLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
