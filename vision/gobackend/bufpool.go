package gobackend

import (
	"sync"
)

// bufferPool holds a set of float32 buffer pools keyed by buffer length so
// pyramid levels of same sized frames reuse their memory
type bufferPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pools: make(map[int]*sync.Pool),
	}
}

// entry returns the pool for buffers of length size, creating it if needed
func (b *bufferPool) entry(size int) *sync.Pool {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pools[size]

	if !ok {
		p = &sync.Pool{
			New: func() any {
				return make([]float32, size)
			},
		}
		b.pools[size] = p
	}

	return p
}

// Get returns a buffer of length size.  Contents are not zeroed, every
// caller overwrites the full buffer.
func (b *bufferPool) Get(size int) []float32 {
	return b.entry(size).Get().([]float32)
}

// Put returns a buffer previously obtained with Get
func (b *bufferPool) Put(buf []float32) {
	if buf == nil {
		return
	}
	b.entry(cap(buf)).Put(buf[:cap(buf)])
}
