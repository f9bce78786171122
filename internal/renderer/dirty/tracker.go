package dirty

import (
	"sort"
	"sync"
)

// DefaultMaxRegions is the number of distinct offsets recorded before the
// tracker gives up on partial rendering and forces a full redraw.
const DefaultMaxRegions = 32

// Tracker records dirty byte offsets in ascending order.
//
// Marking the same offset twice is a no-op. MarkFull dominates any recorded
// offsets: until Clear is called, RegionCount reports zero usable regions and
// further Mark calls are ignored.
type Tracker struct {
	mu sync.RWMutex

	// offsets contains the dirty offsets, sorted ascending, no duplicates.
	offsets []int

	// fullRedraw indicates the whole buffer needs redrawing.
	fullRedraw bool

	// maxRegions is the maximum number of offsets before forcing full redraw.
	maxRegions int
}

// NewTracker creates a new dirty tracker.
// Values of maxRegions less than 1 use DefaultMaxRegions.
func NewTracker(maxRegions int) *Tracker {
	if maxRegions < 1 {
		maxRegions = DefaultMaxRegions
	}
	return &Tracker{
		offsets:    make([]int, 0, 16),
		maxRegions: maxRegions,
	}
}

// Mark marks a byte offset as dirty. Negative offsets are ignored.
func (t *Tracker) Mark(offset int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fullRedraw || offset < 0 {
		return
	}

	i := sort.SearchInts(t.offsets, offset)
	if i < len(t.offsets) && t.offsets[i] == offset {
		return
	}

	t.offsets = append(t.offsets, 0)
	copy(t.offsets[i+1:], t.offsets[i:])
	t.offsets[i] = offset

	if len(t.offsets) > t.maxRegions {
		t.fullRedraw = true
		t.offsets = t.offsets[:0]
	}
}

// MarkRange marks every offset in [start, end) as dirty.
// Ranges wider than the region budget collapse to a full redraw.
func (t *Tracker) MarkRange(start, end int) {
	if end < start {
		start, end = end, start
	}
	t.mu.RLock()
	budget := t.maxRegions
	t.mu.RUnlock()

	if end-start > budget {
		t.MarkFull()
		return
	}
	for off := start; off < end; off++ {
		t.Mark(off)
	}
}

// MarkFull marks the whole buffer as needing redraw.
func (t *Tracker) MarkFull() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fullRedraw = true
	t.offsets = t.offsets[:0]
}

// IsDirty returns true if anything is marked dirty.
func (t *Tracker) IsDirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.fullRedraw || len(t.offsets) > 0
}

// NeedsFullRedraw returns true if a full redraw is needed.
func (t *Tracker) NeedsFullRedraw() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.fullRedraw
}

// RegionCount returns the number of usable dirty offsets.
// Returns zero while a full redraw is pending.
func (t *Tracker) RegionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.fullRedraw {
		return 0
	}
	return len(t.offsets)
}

// Offsets returns a copy of the dirty offsets in ascending order.
// Returns nil while a full redraw is pending.
func (t *Tracker) Offsets() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.fullRedraw || len(t.offsets) == 0 {
		return nil
	}
	result := make([]int, len(t.offsets))
	copy(result, t.offsets)
	return result
}

// Clear clears all dirty state. The next render is full unless new
// offsets are marked before it. Clear never fails.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.offsets = t.offsets[:0]
	t.fullRedraw = false
	return nil
}

// SetMaxRegions sets the maximum number of offsets before forcing full redraw.
// Values less than 1 are clamped to 1.
func (t *Tracker) SetMaxRegions(maxRegs int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if maxRegs < 1 {
		maxRegs = 1
	}
	t.maxRegions = maxRegs
}

// Stats returns statistics about the tracker state.
func (t *Tracker) Stats() TrackerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TrackerStats{
		RegionCount: len(t.offsets),
		FullRedraw:  t.fullRedraw,
		MaxRegions:  t.maxRegions,
	}
}

// TrackerStats contains statistics about the tracker state.
type TrackerStats struct {
	RegionCount int
	FullRedraw  bool
	MaxRegions  int
}
