// Package metrics tracks render pipeline timings and counters.
package metrics

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/tidwall/sjson"
)

// Kind distinguishes full renders from partial (dirty-region) renders.
type Kind uint8

const (
	// Full is a render that copies the whole buffer.
	Full Kind = iota
	// Partial is a render that copies dirty-region windows only.
	Partial
)

func (k Kind) String() string {
	if k == Partial {
		return "partial"
	}
	return "full"
}

const unsetMin = math.MaxInt64

// timing is a count with running total, min and max in nanoseconds.
type timing struct {
	count   atomic.Uint64
	totalNs atomic.Int64
	minNs   atomic.Int64
	maxNs   atomic.Int64
}

func (t *timing) record(ns int64) {
	t.count.Add(1)
	t.totalNs.Add(ns)

	for {
		old := t.minNs.Load()
		if ns >= old {
			break
		}
		if t.minNs.CompareAndSwap(old, ns) {
			break
		}
	}

	for {
		old := t.maxNs.Load()
		if ns <= old {
			break
		}
		if t.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

func (t *timing) reset() {
	t.count.Store(0)
	t.totalNs.Store(0)
	t.minNs.Store(unsetMin)
	t.maxNs.Store(0)
}

func (t *timing) avg() int64 {
	n := t.count.Load()
	if n == 0 {
		return 0
	}
	return t.totalNs.Load() / int64(n)
}

func (t *timing) min() int64 {
	v := t.minNs.Load()
	if v == unsetMin {
		return 0
	}
	return v
}

// Metrics holds monotonically increasing render counters and timings.
// Values only go back to zero through Reset.
type Metrics struct {
	all     timing
	full    timing
	partial timing

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	fallbacks   atomic.Uint64
	clearErrors atomic.Uint64

	lastNs    atomic.Int64
	startTime atomic.Int64
}

// New creates a new metrics block.
func New() *Metrics {
	m := &Metrics{}
	m.Reset()
	return m
}

// RecordRender records one render of the given kind.
func (m *Metrics) RecordRender(kind Kind, duration time.Duration) {
	ns := duration.Nanoseconds()
	if ns < 0 {
		ns = 0
	}
	m.all.record(ns)
	if kind == Partial {
		m.partial.record(ns)
	} else {
		m.full.record(ns)
	}
	m.lastNs.Store(ns)
}

// RecordCacheHit records a render served from the render cache.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a render cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordFallback records a partial render abandoned for a full render.
func (m *Metrics) RecordFallback() {
	m.fallbacks.Add(1)
}

// RecordClearError records a failed dirty tracker clear.
func (m *Metrics) RecordClearError() {
	m.clearErrors.Add(1)
}

// Reset zeroes every counter. Only called on explicit operator request.
func (m *Metrics) Reset() {
	m.all.reset()
	m.full.reset()
	m.partial.reset()
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.fallbacks.Store(0)
	m.clearErrors.Store(0)
	m.lastNs.Store(0)
	m.startTime.Store(time.Now().UnixNano())
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Uptime:         time.Since(time.Unix(0, m.startTime.Load())),
		TotalRenders:   m.all.count.Load(),
		FullRenders:    m.full.count.Load(),
		PartialRenders: m.partial.count.Load(),
		AvgFullNs:      m.full.avg(),
		AvgPartialNs:   m.partial.avg(),
		MinNs:          m.all.min(),
		AvgNs:          m.all.avg(),
		MaxNs:          m.all.maxNs.Load(),
		LastNs:         m.lastNs.Load(),
		CacheHits:      m.cacheHits.Load(),
		CacheMisses:    m.cacheMisses.Load(),
		Fallbacks:      m.fallbacks.Load(),
		ClearErrors:    m.clearErrors.Load(),
	}
}

// Snapshot is a point-in-time view of render metrics.
type Snapshot struct {
	Uptime         time.Duration
	TotalRenders   uint64
	FullRenders    uint64
	PartialRenders uint64
	AvgFullNs      int64
	AvgPartialNs   int64
	MinNs          int64
	AvgNs          int64
	MaxNs          int64
	LastNs         int64
	CacheHits      uint64
	CacheMisses    uint64
	Fallbacks      uint64
	ClearErrors    uint64
}

// PartialRatio returns the percentage of renders that were partial.
func (s Snapshot) PartialRatio() float64 {
	if s.TotalRenders == 0 {
		return 0
	}
	return float64(s.PartialRenders) / float64(s.TotalRenders) * 100
}

// CacheHitRate returns the render cache hit rate as a percentage.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total) * 100
}

// JSON encodes the snapshot as a JSON object.
func (s Snapshot) JSON() ([]byte, error) {
	doc := []byte(`{}`)
	fields := []struct {
		path  string
		value any
	}{
		{"uptime_ms", s.Uptime.Milliseconds()},
		{"renders.total", s.TotalRenders},
		{"renders.full", s.FullRenders},
		{"renders.partial", s.PartialRenders},
		{"renders.partial_ratio", s.PartialRatio()},
		{"timing_ns.min", s.MinNs},
		{"timing_ns.avg", s.AvgNs},
		{"timing_ns.max", s.MaxNs},
		{"timing_ns.last", s.LastNs},
		{"timing_ns.avg_full", s.AvgFullNs},
		{"timing_ns.avg_partial", s.AvgPartialNs},
		{"cache.hits", s.CacheHits},
		{"cache.misses", s.CacheMisses},
		{"cache.hit_rate", s.CacheHitRate()},
		{"fallbacks", s.Fallbacks},
		{"clear_errors", s.ClearErrors},
	}

	var err error
	for _, f := range fields {
		doc, err = sjson.SetBytes(doc, f.path, f.value)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Timer measures elapsed time with nanosecond resolution.
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the elapsed time since the timer started.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
