package proxy

import "sync"

// BufferPool hands out fixed-size relay buffers.
type BufferPool struct {
	size int
	pool sync.Pool
}

func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}

	return bp
}

func (p *BufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *BufferPool) Put(b *[]byte) {
	if len(*b) != p.size {
		return
	}
	p.pool.Put(b)
}
