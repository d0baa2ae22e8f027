package fanout

import "github.com/nirvagold/hermes/internal/ring"

// Engine fans a decoded frame out to every open subscriber but the one that
// produced it. It is driven entirely from the reactor goroutine — Broadcast
// is not safe to call concurrently with itself or with Add/Remove.
type Engine struct {
	pool          *BlobPool
	dropThreshold int

	subs     []*Subscriber // slot table, nil marks a free slot
	freeSlot []int
}

// NewEngine returns an Engine that drops a subscriber after dropThreshold
// consecutive failed pushes, using pool for the owned copies it pushes into
// subscriber rings.
func NewEngine(pool *BlobPool, dropThreshold int) *Engine {
	return &Engine{pool: pool, dropThreshold: dropThreshold}
}

// Add registers a subscriber and returns its slot index, which callers pass
// back as the producer index on Broadcast and to Remove.
func (e *Engine) Add(s *Subscriber) int {
	if n := len(e.freeSlot); n > 0 {
		idx := e.freeSlot[n-1]
		e.freeSlot = e.freeSlot[:n-1]
		e.subs[idx] = s
		return idx
	}
	e.subs = append(e.subs, s)
	return len(e.subs) - 1
}

// Remove frees slot for reuse. The caller is responsible for tearing down
// the underlying connection; Remove only stops the slot from being
// considered by future broadcasts.
func (e *Engine) Remove(slot int) {
	if slot < 0 || slot >= len(e.subs) || e.subs[slot] == nil {
		return
	}
	e.subs[slot] = nil
	e.freeSlot = append(e.freeSlot, slot)
}

// Broadcast pushes a copy of frame into every open subscriber's ring except
// producerSlot. It returns the slots of subscribers that just crossed the
// drop threshold and must be closed by the caller — Broadcast itself never
// closes a connection, only marks the Subscriber as no longer Open.
func (e *Engine) Broadcast(producerSlot int, frame []byte, tick *Tick) []int {
	var closed []int
	for slot, s := range e.subs {
		if s == nil || !s.Open || slot == producerSlot {
			continue
		}
		blob := e.pool.Get(len(frame))
		copy(blob, frame)
		if s.Ring.TryPush(ring.Entry{Buf: blob, Len: len(frame)}) {
			tick.RecordBroadcast()
			s.recordPush()
			continue
		}
		e.pool.Put(blob)
		tick.RecordDrop()
		if s.recordDrop(e.dropThreshold) {
			s.Open = false
			closed = append(closed, slot)
		}
	}
	return closed
}

// SubscriberAt returns the subscriber occupying slot, or nil if slot is out
// of range or currently free.
func (e *Engine) SubscriberAt(slot int) *Subscriber {
	if slot < 0 || slot >= len(e.subs) {
		return nil
	}
	return e.subs[slot]
}

// Len reports the number of occupied slots, open or not yet reaped.
func (e *Engine) Len() int {
	n := 0
	for _, s := range e.subs {
		if s != nil {
			n++
		}
	}
	return n
}
