package fanout

import "github.com/nirvagold/hermes/internal/ring"

// Subscriber is one fan-out destination: a connection's outbound ring plus
// the backpressure bookkeeping the engine needs to decide when to drop it.
// Subscriber is touched only from the reactor goroutine that drives
// Engine.Broadcast; in Hermes that same goroutine also pops the ring in its
// writer pass, and ring.Buffer would equally support a single consumer on
// another goroutine.
type Subscriber struct {
	ID    uint64
	Ring  *ring.Buffer
	Open  bool

	consecutiveDrops int
}

// NewSubscriber wraps ring with the bookkeeping the fan-out engine needs.
func NewSubscriber(id uint64, r *ring.Buffer) *Subscriber {
	return &Subscriber{ID: id, Ring: r, Open: true}
}

// recordPush resets the consecutive-drop counter after a successful push.
func (s *Subscriber) recordPush() { s.consecutiveDrops = 0 }

// recordDrop increments the consecutive-drop counter and reports whether it
// has now reached threshold, meaning the engine should close this subscriber.
func (s *Subscriber) recordDrop(threshold int) (exceeded bool) {
	s.consecutiveDrops++
	return s.consecutiveDrops >= threshold
}
