// Package ring implements a bounded, wait-free single-producer/single-consumer
// queue used to carry outbound frame bytes from the fan-out engine to each
// connection's writer without locks or per-frame allocation.
package ring

import (
	"fmt"
	"sync/atomic"
)

// cacheLinePad is sized to separate head and tail onto distinct cache lines
// so producer and consumer don't false-share.
type cacheLinePad [64 - 8]byte

// Buffer is a bounded SPSC ring of owned byte slices. Capacity must be a
// power of two; slots are pre-allocated at construction and reused by the
// caller (see internal/fanout's free list), so push/pop never allocate.
//
// head is the producer cursor, tail is the consumer cursor; live count is
// head-tail. They're kept on separate cache lines to avoid false sharing
// between the producer and consumer goroutines. sync/atomic's typed atomics
// give sequentially-consistent loads/stores, a stronger guarantee than the
// relaxed/acquire/release pairing the data model describes, never a weaker
// one.
type Buffer struct {
	mask uint64
	data []Entry

	head atomic.Uint64
	_    cacheLinePad
	tail atomic.Uint64
	_    cacheLinePad
}

// Entry is the element type carried by the ring: a reference to a
// pre-allocated byte slot plus the number of valid bytes in it.
type Entry struct {
	Buf []byte
	Len int
}

// New allocates a ring of the given power-of-two capacity. It panics if
// capacity is not a power of two, matching the reference ring buffer's
// construction-time rejection of non-power-of-two sizes.
func New(capacity int) *Buffer {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("ring: capacity must be a power of two, got %d", capacity))
	}
	return &Buffer{
		mask: uint64(capacity - 1),
		data: make([]Entry, capacity),
	}
}

// Capacity returns the construction-time slot count.
func (r *Buffer) Capacity() int { return len(r.data) }

// Len returns a snapshot of the live element count. Informational only:
// under concurrent access from the producer or consumer it may be stale by
// the time the caller observes it.
func (r *Buffer) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int(head - tail)
}

// TryPush enqueues entry if the ring has free space. Called only from the
// single producer (the fan-out engine for this ring's subscriber). Returns
// false without blocking if the ring is full; the caller applies the
// drop policy.
func (r *Buffer) TryPush(entry Entry) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= uint64(len(r.data)) {
		return false
	}
	r.data[head&r.mask] = entry
	r.head.Store(head + 1)
	return true
}

// TryPop dequeues the oldest element if present. Called only from the
// single consumer (the connection's writer pass). Returns ok=false without
// blocking if the ring is empty.
func (r *Buffer) TryPop() (entry Entry, ok bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail >= head {
		return Entry{}, false
	}
	entry = r.data[tail&r.mask]
	r.tail.Store(tail + 1)
	return entry, true
}
