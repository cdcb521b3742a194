// ABOUTME: Bounded TTL cache of recently received push IDs.
// ABOUTME: Lets the ingest path answer repeat deliveries without touching the database.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired IDs are swept when no interval is given.
const DefaultSweepInterval = time.Minute

type entry struct {
	id     string
	seenAt time.Time
}

// Stats reports cache activity since creation.
type Stats struct {
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now. Tests use it to move time without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSweepInterval sets how often expired IDs are swept in the background.
// A non-positive interval disables the sweeper; expired IDs are still ignored on lookup.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepEvery = d }
}

// Cache remembers push IDs for a fixed TTL, up to maxSize IDs. The oldest ID
// is evicted first when the cache is full.
type Cache struct {
	mu         sync.Mutex
	byID       map[string]*list.Element
	order      *list.List // oldest at front
	ttl        time.Duration
	maxSize    int
	now        func() time.Time
	sweepEvery time.Duration
	stats      Stats
	done       chan struct{}
	stopOnce   sync.Once
}

// New creates a cache. A maxSize below 1 is treated as 1.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		byID:       make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxSize:    maxSize,
		now:        time.Now,
		sweepEvery: DefaultSweepInterval,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepEvery > 0 {
		go c.sweepLoop()
	}
	return c
}

// Seen reports whether id was recorded within the TTL.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(id) {
		c.stats.Hits++
		return true
	}
	c.stats.Misses++
	return false
}

// Remember records id as seen now. Re-remembering an ID refreshes it.
func (c *Cache) Remember(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rememberLocked(id)
}

// Forget drops id from the cache.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byID[id]; ok {
		c.order.Remove(el)
		delete(c.byID, id)
	}
}

// Reset drops every ID. Counters are kept.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = len(c.byID)
	return s
}

func (c *Cache) liveLocked(id string) bool {
	el, ok := c.byID[id]
	if !ok {
		return false
	}
	e, _ := el.Value.(*entry)
	return c.now().Sub(e.seenAt) < c.ttl
}

func (c *Cache) rememberLocked(id string) {
	now := c.now()

	if el, ok := c.byID[id]; ok {
		e, _ := el.Value.(*entry)
		e.seenAt = now
		c.order.MoveToBack(el)
		return
	}

	for len(c.byID) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		e, _ := front.Value.(*entry)
		c.order.Remove(front)
		delete(c.byID, e.id)
		c.stats.Evictions++
	}

	c.byID[id] = c.order.PushBack(&entry{id: id, seenAt: now})
}

// Sweep removes expired IDs and returns how many were dropped.
// Refreshed IDs move to the back, so the walk stops at the first live one.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		e, _ := el.Value.(*entry)
		if now.Sub(e.seenAt) < c.ttl {
			break
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.byID, e.id)
		removed++
		el = next
	}
	return removed
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.done) })
}
