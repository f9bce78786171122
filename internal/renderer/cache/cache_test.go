package cache

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dshills/stormline/internal/renderer/core"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, maxEntries int, ttl time.Duration) (*Cache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c, err := New(Config{MaxEntries: maxEntries, TTL: ttl, Now: clock.Now})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, clock
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{MaxEntries: 0}); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("New(MaxEntries=0) error = %v, want ErrInvalidParameter", err)
	}
	if _, err := New(Config{MaxEntries: 1, TTL: -time.Second}); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("New(TTL<0) error = %v, want ErrInvalidParameter", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxEntries != 1000 {
		t.Errorf("MaxEntries = %d, want 1000", cfg.MaxEntries)
	}
	if cfg.TTL <= 0 {
		t.Error("TTL should be positive")
	}
}

func TestStoreLookup(t *testing.T) {
	c, _ := newTestCache(t, 10, 0)

	if err := c.Store("k", []byte("hello")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, ok := c.Lookup("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "hello" {
		t.Errorf("Lookup() = %q, want %q", got, "hello")
	}

	// Mutating the returned slice must not affect the cache.
	got[0] = 'J'
	again, _ := c.Lookup("k")
	if string(again) != "hello" {
		t.Errorf("cache entry was mutated through returned slice: %q", again)
	}
}

func TestStoreCopiesInput(t *testing.T) {
	c, _ := newTestCache(t, 10, 0)
	data := []byte("abc")
	_ = c.Store("k", data)
	data[0] = 'X'

	got, _ := c.Lookup("k")
	if string(got) != "abc" {
		t.Errorf("Lookup() = %q, want %q", got, "abc")
	}
}

func TestStoreEmptyKey(t *testing.T) {
	c, _ := newTestCache(t, 10, 0)
	if err := c.Store("", []byte("x")); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("Store(\"\") error = %v, want ErrInvalidParameter", err)
	}
}

func TestLookupStats(t *testing.T) {
	c, _ := newTestCache(t, 10, 0)
	_ = c.Store("a", []byte("1"))

	c.Lookup("a")
	c.Lookup("a")
	c.Lookup("a")
	c.Lookup("missing")

	stats := c.Stats()
	if stats.Hits != 3 {
		t.Errorf("Hits = %d, want 3", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.HitRate != 75 {
		t.Errorf("HitRate = %v, want 75", stats.HitRate)
	}

	info, ok := c.Info("a")
	if !ok {
		t.Fatal("Info() missing entry")
	}
	if info.AccessCount != 3 {
		t.Errorf("AccessCount = %d, want 3", info.AccessCount)
	}
	if info.Size != 1 || !info.Valid {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestLookupRefreshesLastAccess(t *testing.T) {
	c, clock := newTestCache(t, 10, 0)
	_ = c.Store("a", []byte("1"))
	before, _ := c.Info("a")

	clock.Advance(time.Second)
	c.Lookup("a")

	after, _ := c.Info("a")
	if !after.LastAccess.After(before.LastAccess) {
		t.Errorf("LastAccess not refreshed: before=%v after=%v", before.LastAccess, after.LastAccess)
	}
	if !after.Created.Equal(before.Created) {
		t.Error("Created must not change on lookup")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(t, 3, 0)
	_ = c.Store("a", []byte("1"))
	_ = c.Store("b", []byte("2"))
	_ = c.Store("c", []byte("3"))

	// Touch a so that b becomes the oldest.
	c.Lookup("a")

	_ = c.Store("d", []byte("4"))

	if c.Contains("b") {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !c.Contains(k) {
			t.Errorf("%s should still be cached", k)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestEvictionRandomizedAccess(t *testing.T) {
	const maxEntries = 16
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		c, _ := newTestCache(t, maxEntries, 0)

		// Model of access order: index 0 is least recently used.
		var order []string
		touch := func(key string) {
			for i, k := range order {
				if k == key {
					order = append(order[:i], order[i+1:]...)
					break
				}
			}
			order = append(order, key)
		}

		for i := 0; i < maxEntries; i++ {
			key := fmt.Sprintf("k%d", i)
			_ = c.Store(key, []byte(key))
			touch(key)
		}
		for i := 0; i < 40; i++ {
			key := fmt.Sprintf("k%d", rng.Intn(maxEntries))
			if _, ok := c.Lookup(key); !ok {
				t.Fatalf("round %d: unexpected miss for %s", round, key)
			}
			touch(key)
		}

		victim := order[0]
		_ = c.Store("new", []byte("x"))

		if c.Contains(victim) {
			t.Fatalf("round %d: least recently used %s was not evicted", round, victim)
		}
		for _, k := range order[1:] {
			if !c.Contains(k) {
				t.Fatalf("round %d: %s evicted but was more recently used than %s", round, k, victim)
			}
		}
		if c.Len() != maxEntries {
			t.Fatalf("round %d: Len() = %d, want %d", round, c.Len(), maxEntries)
		}
	}
}

func TestStoreReplaceDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(t, 2, 0)
	_ = c.Store("a", []byte("1"))
	_ = c.Store("b", []byte("2"))
	_ = c.Store("a", []byte("3"))

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	got, _ := c.Lookup("a")
	if string(got) != "3" {
		t.Errorf("Lookup(a) = %q, want 3", got)
	}
	if c.Stats().Evictions != 0 {
		t.Error("replacing a key must not evict")
	}
}

func TestTTLExpiry(t *testing.T) {
	c, clock := newTestCache(t, 10, 100*time.Millisecond)
	_ = c.Store("a", []byte("1"))

	clock.Advance(50 * time.Millisecond)
	if _, ok := c.Lookup("a"); !ok {
		t.Fatal("entry should be live before TTL")
	}

	clock.Advance(51 * time.Millisecond)
	if _, ok := c.Lookup("a"); ok {
		t.Fatal("entry should be a miss after TTL")
	}

	// Expired entries occupy a slot until validated away.
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 before Validate", c.Len())
	}
	if removed := c.Validate(); removed != 1 {
		t.Errorf("Validate() removed %d, want 1", removed)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Validate", c.Len())
	}
}

func TestSetTTL(t *testing.T) {
	c, clock := newTestCache(t, 10, 0)
	_ = c.Store("a", []byte("1"))
	clock.Advance(time.Hour)

	if _, ok := c.Lookup("a"); !ok {
		t.Fatal("zero TTL should never expire")
	}

	c.SetTTL(time.Minute)
	if _, ok := c.Lookup("a"); ok {
		t.Fatal("entry older than new TTL should miss")
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(t, 10, 0)
	_ = c.Store("a", []byte("1"))
	_ = c.Store("b", []byte("2"))

	c.Invalidate("a")
	c.Invalidate("missing")

	if c.Contains("a") {
		t.Error("a should be invalidated")
	}
	if !c.Contains("b") {
		t.Error("b should remain")
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "b" {
		t.Errorf("Keys() = %v, want [b]", keys)
	}
}

func TestInvalidateAllKeepsCounters(t *testing.T) {
	c, _ := newTestCache(t, 10, 0)
	_ = c.Store("a", []byte("1"))
	_ = c.Store("b", []byte("2"))
	c.Lookup("a")
	c.Lookup("zzz")

	c.InvalidateAll()

	stats := c.Stats()
	if stats.Size != 0 {
		t.Errorf("Size = %d, want 0", stats.Size)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("counters reset: hits=%d misses=%d", stats.Hits, stats.Misses)
	}
	if stats.Evictions != 2 {
		t.Errorf("Evictions = %d, want 2", stats.Evictions)
	}

	// The cache is usable after invalidation.
	_ = c.Store("c", []byte("3"))
	if !c.Contains("c") {
		t.Error("store after InvalidateAll failed")
	}
}

func TestUseAfterClose(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Second)
	_ = c.Store("a", []byte("1"))

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := c.Store("b", []byte("2")); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("Store() after Close error = %v, want ErrNotInitialized", err)
	}
	if _, ok := c.Lookup("a"); ok {
		t.Error("Lookup() after Close should miss")
	}
	c.Invalidate("a")
	c.InvalidateAll()
	if n := c.Validate(); n != 0 {
		t.Errorf("Validate() after Close = %d, want 0", n)
	}
	if c.Len() != 0 || len(c.Keys()) != 0 {
		t.Error("closed cache should be empty")
	}
}

func TestKeysMostRecentFirst(t *testing.T) {
	c, _ := newTestCache(t, 10, 0)
	_ = c.Store("a", nil)
	_ = c.Store("b", nil)
	_ = c.Store("c", nil)
	c.Lookup("a")

	keys := c.Keys()
	want := []string{"a", "c", "b"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, err := New(Config{MaxEntries: 64, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*7+i)%100)
				if i%3 == 0 {
					_ = c.Store(key, []byte(key))
				} else {
					c.Lookup(key)
				}
				if i%97 == 0 {
					c.InvalidateAll()
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Len() = %d exceeds max entries", c.Len())
	}
	if len(c.Keys()) != c.Len() {
		t.Error("map and LRU list disagree")
	}
}
