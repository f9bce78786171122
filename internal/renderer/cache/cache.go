// Package cache provides a string-keyed LRU cache with soft TTL expiry for
// memoizing expensive render and composition results.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/stormline/internal/renderer/core"
)

// Defaults.
const (
	DefaultMaxEntries = 1000
	DefaultTTL        = 30 * time.Second
)

// Config configures the cache behavior.
type Config struct {
	// MaxEntries is the maximum number of entries held at once.
	MaxEntries int

	// TTL is the soft expiry age. Zero disables expiry.
	TTL time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries: DefaultMaxEntries,
		TTL:        DefaultTTL,
	}
}

// Entry is a cached byte blob with its bookkeeping.
// Entries are owned by the cache; Lookup returns a copy of the data.
type Entry struct {
	key     string
	data    []byte
	created int64 // unix nanoseconds

	lastAccess  atomic.Int64 // unix nanoseconds
	accessCount atomic.Uint64
	valid       atomic.Bool

	elem *list.Element
}

// EntryInfo is a snapshot of an entry's metadata.
type EntryInfo struct {
	Key         string
	Size        int
	Created     time.Time
	LastAccess  time.Time
	AccessCount uint64
	Valid       bool
}

// Cache is an LRU cache of byte blobs keyed by string.
//
// Every entry in the map has a node in the LRU list and vice versa. The map
// is guarded by mu (lookups take the read lock, mutations the write lock).
// The LRU list has its own lock so that a lookup can promote an entry while
// holding only the read lock. Lock order is always mu then lruMu.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	closed  bool

	lruMu sync.Mutex
	lru   *list.List // most recently used at front

	maxEntries int
	ttl        atomic.Int64 // nanoseconds; 0 = no expiry
	now        func() time.Time

	// Stats (atomic for lock-free reads)
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	hitRate   atomic.Uint64 // percentage * 100
}

// New creates a new cache. MaxEntries must be positive.
func New(cfg Config) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		return nil, core.Errorf("cache", core.ErrInvalidParameter, "max entries %d", cfg.MaxEntries)
	}
	if cfg.TTL < 0 {
		return nil, core.Errorf("cache", core.ErrInvalidParameter, "ttl %s", cfg.TTL)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Cache{
		entries:    make(map[string]*Entry),
		lru:        list.New(),
		maxEntries: cfg.MaxEntries,
		now:        cfg.Now,
	}
	c.ttl.Store(int64(cfg.TTL))
	return c, nil
}

// Store inserts or replaces the blob stored under key. The data is copied.
// When the cache is full the least recently accessed entry is evicted.
func (c *Cache) Store(key string, data []byte) error {
	if key == "" {
		return core.Errorf("cache", core.ErrInvalidParameter, "store: empty key")
	}

	// Copy outside the lock.
	buf := make([]byte, len(data))
	copy(buf, data)
	now := c.now().UnixNano()

	entry := &Entry{key: key, data: buf, created: now}
	entry.lastAccess.Store(now)
	entry.valid.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.Errorf("cache", core.ErrNotInitialized, "store")
	}
	c.lruMu.Lock()
	defer c.lruMu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.lru.Remove(old.elem)
		delete(c.entries, key)
	}

	for len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	entry.elem = c.lru.PushFront(entry)
	c.entries[key] = entry
	return nil
}

// Lookup returns a copy of the blob stored under key.
// Expired or invalidated entries are reported as misses.
func (c *Cache) Lookup(key string) ([]byte, bool) {
	now := c.now().UnixNano()
	ttl := c.ttl.Load()

	c.mu.RLock()
	entry, ok := c.entries[key]
	if ok && !entry.valid.Load() {
		ok = false
	}
	if ok && ttl > 0 && now-entry.created > ttl {
		// Soft expiry: the slot stays until evicted or validated away.
		entry.valid.Store(false)
		ok = false
	}
	var out []byte
	if ok {
		entry.lastAccess.Store(now)
		entry.accessCount.Add(1)
		c.lruMu.Lock()
		c.lru.MoveToFront(entry.elem)
		c.lruMu.Unlock()
		out = entry.data
	}
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.updateHitRate()

	if !ok {
		return nil, false
	}
	// Entry data is never mutated after Store, copy outside the lock.
	result := make([]byte, len(out))
	copy(result, out)
	return result, true
}

// Contains reports whether a live entry exists without touching LRU order
// or statistics.
func (c *Cache) Contains(key string) bool {
	now := c.now().UnixNano()
	ttl := c.ttl.Load()

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !entry.valid.Load() {
		return false
	}
	return ttl <= 0 || now-entry.created <= ttl
}

// Info returns the metadata of the entry stored under key.
func (c *Cache) Info(key string) (EntryInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return EntryInfo{}, false
	}
	return EntryInfo{
		Key:         entry.key,
		Size:        len(entry.data),
		Created:     time.Unix(0, entry.created),
		LastAccess:  time.Unix(0, entry.lastAccess.Load()),
		AccessCount: entry.accessCount.Load(),
		Valid:       entry.valid.Load(),
	}, true
}

// Invalidate removes the entry stored under key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return
	}
	c.lruMu.Lock()
	c.lru.Remove(entry.elem)
	c.lruMu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll drops every entry by replacing the backing store.
// Hit and miss counters are kept; dropped entries count as evictions.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.lruMu.Lock()
	c.lru = list.New()
	c.lruMu.Unlock()
	c.evictions.Add(uint64(dropped))
}

// Validate removes expired and invalidated entries. It returns the number
// of entries removed.
func (c *Cache) Validate() int {
	now := c.now().UnixNano()
	ttl := c.ttl.Load()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lruMu.Lock()
	defer c.lruMu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.valid.Load() && (ttl <= 0 || now-entry.created <= ttl) {
			continue
		}
		c.lru.Remove(entry.elem)
		delete(c.entries, key)
		removed++
	}
	c.evictions.Add(uint64(removed))
	return removed
}

// SetTTL changes the soft expiry age. Zero disables expiry.
func (c *Cache) SetTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	c.ttl.Store(int64(ttl))
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the keys in most-recently-used first order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.lruMu.Lock()
	defer c.lruMu.Unlock()

	keys := make([]string, 0, c.lru.Len())
	for e := c.lru.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*Entry).key)
	}
	return keys
}

// Close drops every entry. Later stores fail with ErrNotInitialized and
// lookups miss.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries = make(map[string]*Entry)
	c.lruMu.Lock()
	c.lru = list.New()
	c.lruMu.Unlock()
	return nil
}

// evictOldestLocked removes the least recently used entry.
// Callers hold both mu and lruMu.
func (c *Cache) evictOldestLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*Entry)
	c.lru.Remove(back)
	delete(c.entries, entry.key)
	c.evictions.Add(1)
}

func (c *Cache) updateHitRate() {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		c.hitRate.Store(0)
		return
	}
	c.hitRate.Store(hits * 100 * 100 / total)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Size:      size,
		MaxSize:   c.maxEntries,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		HitRate:   float64(c.hitRate.Load()) / 100,
	}
}

// Stats holds cache statistics.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64 // percent, hits * 100 / (hits + misses)
}

func (s Stats) String() string {
	return fmt.Sprintf("size=%d/%d hits=%d misses=%d evictions=%d hit_rate=%.2f%%",
		s.Size, s.MaxSize, s.Hits, s.Misses, s.Evictions, s.HitRate)
}
