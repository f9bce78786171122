package renderer

import (
	"github.com/dshills/stormline/internal/renderer/core"
	"github.com/dshills/stormline/internal/renderer/dirty"
)

// bufferRenderer assembles output into a staging buffer of fixed capacity.
// Nothing leaves the staging buffer unless the whole render fit.
type bufferRenderer struct {
	pool    Pool
	staging []byte
	crlf    bool
}

func newBufferRenderer(pool Pool, capacity int, crlf bool) (*bufferRenderer, error) {
	staging, err := pool.Get(capacity)
	if err != nil {
		return nil, err
	}
	return &bufferRenderer{pool: pool, staging: staging, crlf: crlf}, nil
}

// full copies the whole buffer into staging.
func (b *bufferRenderer) full(buf []byte) (int, error) {
	n, ok := b.put(0, buf, dirty.Region{Start: 0, End: len(buf)})
	if !ok {
		return 0, core.Errorf("renderer", core.ErrBufferTooSmall,
			"full render of %d bytes into %d", len(buf), len(b.staging))
	}
	return n, nil
}

// partial copies each region of buf into staging in order. Regions must be
// ascending and disjoint. Returns false if the result does not fit.
func (b *bufferRenderer) partial(buf []byte, regions []dirty.Region) (int, bool) {
	pos := 0
	for _, r := range regions {
		var ok bool
		pos, ok = b.put(pos, buf, r)
		if !ok {
			return 0, false
		}
	}
	return pos, true
}

// put copies buf[r.Start:r.End] to staging at pos. In CRLF mode a bare line
// feed becomes CR LF; the byte before the region is consulted so a region
// starting on the LF of an existing CR LF is not doubled.
func (b *bufferRenderer) put(pos int, buf []byte, r dirty.Region) (int, bool) {
	src := buf[r.Start:r.End]
	if !b.crlf {
		if pos+len(src) > len(b.staging) {
			return pos, false
		}
		return pos + copy(b.staging[pos:], src), true
	}

	for i, c := range src {
		abs := r.Start + i
		if c == '\n' && (abs == 0 || buf[abs-1] != '\r') {
			if pos+2 > len(b.staging) {
				return pos, false
			}
			b.staging[pos] = '\r'
			b.staging[pos+1] = '\n'
			pos += 2
			continue
		}
		if pos >= len(b.staging) {
			return pos, false
		}
		b.staging[pos] = c
		pos++
	}
	return pos, true
}

// bytes returns the first n staged bytes.
func (b *bufferRenderer) bytes(n int) []byte {
	return b.staging[:n]
}

func (b *bufferRenderer) capacity() int {
	return len(b.staging)
}

func (b *bufferRenderer) close() {
	if b.staging != nil {
		b.pool.Put(b.staging)
		b.staging = nil
	}
}
