// Package dirty provides dirty region tracking for incremental rendering.
// It records which byte offsets of the command buffer changed since the last
// render and turns them into context windows for partial redraws.
package dirty

// Region is a half-open byte range [Start, End) of the command buffer.
type Region struct {
	// Start is the first byte of the region (inclusive).
	Start int

	// End is one past the last byte of the region (exclusive).
	End int
}

// NewRegion creates a region, swapping the bounds if reversed.
func NewRegion(start, end int) Region {
	if end < start {
		start, end = end, start
	}
	return Region{Start: start, End: end}
}

// Window returns the context window of the given radius around offset,
// clamped to a buffer of length size.
func Window(offset, radius, size int) Region {
	if size <= 0 {
		return Region{}
	}
	if radius < 0 {
		radius = 0
	}
	start := offset - radius
	if start < 0 {
		start = 0
	}
	end := offset + radius
	if end > size {
		end = size
	}
	if start > end {
		start = end
	}
	return Region{Start: start, End: end}
}

// IsEmpty returns true if the region covers no bytes.
func (r Region) IsEmpty() bool {
	return r.Start >= r.End
}

// Len returns the number of bytes covered by the region.
func (r Region) Len() int {
	if r.IsEmpty() {
		return 0
	}
	return r.End - r.Start
}

// Contains returns true if the region covers the given offset.
func (r Region) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// Overlaps returns true if two regions share at least one byte.
func (r Region) Overlaps(other Region) bool {
	return r.Start < other.End && other.Start < r.End
}

// Adjacent returns true if one region ends exactly where the other starts.
func (r Region) Adjacent(other Region) bool {
	return r.End == other.Start || other.End == r.Start
}

// Merge combines two regions into a single region that covers both.
// Returns the merged region and true if they overlap or touch.
func (r Region) Merge(other Region) (Region, bool) {
	if !r.Overlaps(other) && !r.Adjacent(other) {
		return Region{}, false
	}
	return Region{
		Start: min(r.Start, other.Start),
		End:   max(r.End, other.End),
	}, true
}

// Coalesce merges overlapping or adjacent regions of an ascending slice in
// place and returns the shortened slice. Input must be sorted by Start.
func Coalesce(regions []Region) []Region {
	if len(regions) <= 1 {
		return regions
	}
	out := regions[:1]
	for _, r := range regions[1:] {
		if r.IsEmpty() {
			continue
		}
		last := &out[len(out)-1]
		if merged, ok := last.Merge(r); ok {
			*last = merged
			continue
		}
		out = append(out, r)
	}
	return out
}
