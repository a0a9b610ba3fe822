// Package cache provides the in-memory LRU used in front of chain reads.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config holds cache sizing and expiry settings
type Config struct {
	// MaxSize is the maximum number of entries kept
	MaxSize int

	// DefaultTTL applies to values that may change (latest heights, unfinalized hashes)
	DefaultTTL time.Duration

	// ImmutableTTL applies to values that never change (finalized hashes, samples at a hash).
	// Zero means no expiry.
	ImmutableTTL time.Duration

	// CleanupInterval is how often expired entries are swept. Zero disables the sweeper.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() *Config {
	return &Config{
		MaxSize:         100_000,
		DefaultTTL:      6 * time.Second,
		ImmutableTTL:    0,
		CleanupInterval: time.Minute,
	}
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero = never
	element   *list.Element
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a thread-safe LRU cache with TTL support
type Cache[V any] struct {
	mu        sync.Mutex
	maxSize   int
	items     map[string]*entry[V]
	lru       *list.List
	config    *Config
	hits      int64
	misses    int64
	evictions int64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a new LRU cache. Call Close to stop the background sweeper.
func New[V any](config *Config) *Cache[V] {
	if config == nil {
		config = DefaultConfig()
	}
	maxSize := config.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxSize
	}

	c := &Cache[V]{
		maxSize: maxSize,
		items:   make(map[string]*entry[V]),
		lru:     list.New(),
		config:  config,
		stop:    make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go c.cleanupLoop(config.CleanupInterval)
	}

	return c
}

// Get retrieves a value from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, exists := c.items[key]
	if !exists {
		c.misses++
		return zero, false
	}

	if e.expired(time.Now()) {
		c.removeEntry(e)
		c.misses++
		return zero, false
	}

	c.lru.MoveToFront(e.element)
	c.hits++
	return e.value, true
}

// Set stores a value with the given TTL. A zero TTL never expires.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if e, exists := c.items[key]; exists {
		e.value = value
		e.expiresAt = expiresAt
		c.lru.MoveToFront(e.element)
		return
	}

	for c.lru.Len() >= c.maxSize {
		c.evictOldest()
	}

	e := &entry[V]{key: key, value: value, expiresAt: expiresAt}
	e.element = c.lru.PushFront(e)
	c.items[key] = e
}

// SetWithDefaultTTL stores a value that may change
func (c *Cache[V]) SetWithDefaultTTL(key string, value V) {
	c.Set(key, value, c.config.DefaultTTL)
}

// SetImmutable stores a value that never changes
func (c *Cache[V]) SetImmutable(key string, value V) {
	c.Set(key, value, c.config.ImmutableTTL)
}

// Stats is a snapshot of cache counters
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: len(c.items)}
}

// Close stops the background sweeper. The cache remains usable.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// removeEntry removes an entry (must be called with lock held)
func (c *Cache[V]) removeEntry(e *entry[V]) {
	c.lru.Remove(e.element)
	delete(c.items, e.key)
}

// evictOldest removes the least recently used entry (must be called with lock held)
func (c *Cache[V]) evictOldest() {
	oldest := c.lru.Back()
	if oldest != nil {
		c.removeEntry(oldest.Value.(*entry[V]))
		c.evictions++
	}
}

func (c *Cache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

// cleanup removes all expired entries
func (c *Cache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, e := range c.items {
		if e.expired(now) {
			c.removeEntry(e)
		}
	}
}
