package optimize

import (
	"sync"
)

// BytePool is a pool of byte slices to reduce allocations on hot paths such
// as per-packet reads from a media track.
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a new byte pool with specified slice size
func NewBytePool(size int) *BytePool {
	return &BytePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		},
	}
}

// Get gets a byte slice from the pool
func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a byte slice to the pool
func (p *BytePool) Put(b []byte) {
	if cap(b) >= p.size {
		p.pool.Put(b[:p.size])
	}
}
