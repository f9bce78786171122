package renderer

import (
	"sync"

	"github.com/dshills/stormline/internal/renderer/core"
)

// Pool supplies the byte buffers the controller renders into.
type Pool interface {
	// Get returns a buffer of exactly size bytes.
	Get(size int) ([]byte, error)

	// Put returns a buffer obtained from Get.
	Put(buf []byte)
}

// BytePool is a Pool backed by sync.Pool.
type BytePool struct {
	pool sync.Pool
}

// NewBytePool creates an empty byte pool.
func NewBytePool() *BytePool {
	return &BytePool{}
}

// Get returns a buffer of size bytes, reusing a pooled one when it is large
// enough.
func (p *BytePool) Get(size int) ([]byte, error) {
	if size <= 0 {
		return nil, core.Errorf("pool", core.ErrInvalidParameter, "get %d bytes", size)
	}
	if v, ok := p.pool.Get().(*[]byte); ok && cap(*v) >= size {
		return (*v)[:size], nil
	}
	return make([]byte, size), nil
}

// Put returns buf to the pool.
func (p *BytePool) Put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	buf = buf[:0]
	p.pool.Put(&buf)
}
