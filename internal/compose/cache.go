package compose

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// Defaults for the composition cache.
const (
	DefaultCacheSlots  = 16
	DefaultCacheMaxAge = 5 * time.Second
)

// cacheKey fingerprints a (prompt, command) pair.
type cacheKey struct {
	prompt  uint64
	command uint64
}

func newCacheKey(prompt, command string) cacheKey {
	return cacheKey{
		prompt:  xxhash.Sum64String(prompt),
		command: xxhash.Sum64String(command),
	}
}

type cacheSlot struct {
	key      cacheKey
	frame    Frame
	created  time.Time
	lastUsed time.Time
	valid    bool
}

// frameCache is a fixed ring of slots. Entries older than maxAge are stale
// and never served; the least recently used slot is replaced when full.
type frameCache struct {
	slots  []cacheSlot
	maxAge time.Duration
	now    func() time.Time
}

func newFrameCache(slots int, maxAge time.Duration, now func() time.Time) *frameCache {
	if now == nil {
		now = time.Now
	}
	return &frameCache{
		slots:  make([]cacheSlot, slots),
		maxAge: maxAge,
		now:    now,
	}
}

// lookup returns the live frame stored under key.
func (c *frameCache) lookup(key cacheKey) (Frame, bool) {
	now := c.now()
	for i := range c.slots {
		s := &c.slots[i]
		if !s.valid || s.key != key {
			continue
		}
		if c.maxAge > 0 && now.Sub(s.created) > c.maxAge {
			s.valid = false
			return Frame{}, false
		}
		s.lastUsed = now
		return s.frame, true
	}
	return Frame{}, false
}

// store saves frame under key, replacing the slot for the same key, a free
// slot, or the least recently used slot, in that order.
func (c *frameCache) store(key cacheKey, frame Frame) {
	now := c.now()
	victim := -1
	for i := range c.slots {
		s := &c.slots[i]
		if s.valid && s.key == key {
			victim = i
			break
		}
		if !s.valid {
			if victim < 0 || c.slots[victim].valid {
				victim = i
			}
			continue
		}
		if victim < 0 || (c.slots[victim].valid && s.lastUsed.Before(c.slots[victim].lastUsed)) {
			victim = i
		}
	}

	c.slots[victim] = cacheSlot{
		key:      key,
		frame:    frame,
		created:  now,
		lastUsed: now,
		valid:    true,
	}
}

// invalidate marks every slot stale.
func (c *frameCache) invalidate() {
	for i := range c.slots {
		c.slots[i] = cacheSlot{}
	}
}

func (c *frameCache) setMaxAge(d time.Duration) {
	c.maxAge = d
}

// len returns the number of valid slots.
func (c *frameCache) len() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].valid {
			n++
		}
	}
	return n
}
