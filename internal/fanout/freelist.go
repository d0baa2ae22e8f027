package fanout

import "sync"

// BlobPool hands out fixed-capacity byte slices so the broadcast hot path
// never calls make([]byte, ...) per subscriber per frame. A blob is owned by
// whichever ring.Entry currently references it; the consumer (the
// reactor's writer pass) returns it via Put once the bytes have been
// copied into the socket write buffer.
type BlobPool struct {
	pool sync.Pool
	size int
}

// NewBlobPool returns a pool of blobs of the given size, typically
// protocol.MaxFrameLen so any single frame fits without reallocation.
func NewBlobPool(size int) *BlobPool {
	return &BlobPool{
		pool: sync.Pool{New: func() any {
			b := make([]byte, size)
			return &b
		}},
		size: size,
	}
}

// Get returns a blob of at least p.size bytes, truncated to n.
func (p *BlobPool) Get(n int) []byte {
	b := *(p.pool.Get().(*[]byte))
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// Put returns a blob to the pool for reuse. Callers must not retain b after
// calling Put.
func (p *BlobPool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:cap(b)]
	p.pool.Put(&b)
}
