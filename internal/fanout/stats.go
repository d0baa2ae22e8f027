package fanout

import "sync/atomic"

// Stats holds the shared, eventually-consistent broker-wide counters.
// MessagesBroadcast and MessagesDropped are updated at most once per reactor
// tick (never per frame) — see Tick.Flush; the error and connection
// counters are incremented directly, once per such event. Relaxed/
// eventually-consistent semantics are sufficient since these are
// observational only.
type Stats struct {
	MessagesBroadcast      atomic.Uint64
	MessagesDropped        atomic.Uint64
	FramingErrors          atomic.Uint64
	CRCErrors              atomic.Uint64
	ConnectionsAccepted    atomic.Uint64
	ConnectionsRejected    atomic.Uint64
	ConnectionsClosed      atomic.Uint64
	SubscribersDisconnected atomic.Uint64
}

// StatsSnapshot is a point-in-time read of every Stats counter, used by
// internal/metrics to compute per-interval deltas without touching the
// atomics more than once per sample.
type StatsSnapshot struct {
	MessagesBroadcast      uint64
	MessagesDropped        uint64
	FramingErrors          uint64
	CRCErrors              uint64
	ConnectionsAccepted    uint64
	ConnectionsRejected    uint64
	ConnectionsClosed      uint64
	SubscribersDisconnected uint64
}

// Snapshot reads every counter once, relaxed, into a StatsSnapshot.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		MessagesBroadcast:      s.MessagesBroadcast.Load(),
		MessagesDropped:        s.MessagesDropped.Load(),
		FramingErrors:          s.FramingErrors.Load(),
		CRCErrors:              s.CRCErrors.Load(),
		ConnectionsAccepted:    s.ConnectionsAccepted.Load(),
		ConnectionsRejected:    s.ConnectionsRejected.Load(),
		ConnectionsClosed:      s.ConnectionsClosed.Load(),
		SubscribersDisconnected: s.SubscribersDisconnected.Load(),
	}
}

// Tick accumulates counter deltas for a single reactor iteration and applies
// them to Stats exactly once via Flush. This is load-bearing for the P99
// target: without batching, every pushed frame would cost a fetch_add per
// subscriber per counter.
type Tick struct {
	broadcast int64
	dropped   int64
}

// RecordBroadcast notes one successful push into a subscriber's ring.
func (t *Tick) RecordBroadcast() { t.broadcast++ }

// RecordDrop notes one failed push (backpressure drop).
func (t *Tick) RecordDrop() { t.dropped++ }

// Flush applies this tick's accumulated deltas to s and resets the tick for
// reuse on the next reactor iteration.
func (t *Tick) Flush(s *Stats) {
	if t.broadcast != 0 {
		s.MessagesBroadcast.Add(uint64(t.broadcast))
	}
	if t.dropped != 0 {
		s.MessagesDropped.Add(uint64(t.dropped))
	}
	t.broadcast = 0
	t.dropped = 0
}
