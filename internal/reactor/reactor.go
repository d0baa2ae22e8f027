//go:build linux

// Package reactor implements Hermes's single-threaded event loop: one
// goroutine owns one epoll set, accepts connections non-blockingly, decodes
// frames in place out of per-connection read buffers, and drives the
// fan-out engine and the persistence log. No connection ever gets its own
// goroutine — that is the whole point of the design (spec §4.4).
package reactor

import (
	"context"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/nirvagold/hermes/internal/fanout"
	"github.com/nirvagold/hermes/internal/mmaplog"
	"github.com/nirvagold/hermes/internal/protocol"
	"github.com/nirvagold/hermes/internal/ring"
)

// Options configures a Reactor. Zero values are not safe defaults for every
// field; callers should populate Options from internal/config.Config.
type Options struct {
	ListenAddr       string
	ReadBufferSize   int
	WriteBufferSize  int
	RingSize         int
	DropThreshold    int
	PollTimeout      time.Duration // upper bound passed to epoll_wait
	IdleSleep        time.Duration // slept when a poll returns nothing and no connection is open
	HeartbeatTimeout time.Duration // 0 disables the sweep

	// AcceptLimiter bounds the rate of accepted connections (DoS protection
	// against a connection flood); nil disables the check entirely.
	AcceptLimiter *rate.Limiter
}

// Hooks lets callers observe lifecycle events without the reactor importing
// a logging or metrics package directly, keeping the hot path free of any
// interface dispatch it doesn't already need for fan-out/persistence.
type Hooks struct {
	OnAccept     func(fd int)
	OnClose      func(fd int, reason error)
	OnFramingErr func(fd int, err error)
}

// Reactor is the single-threaded event loop described in spec §4.4/§4.6.
type Reactor struct {
	opts   Options
	hooks  Hooks
	poller *poller
	log    *mmaplog.Log // nil disables persistence
	engine *fanout.Engine
	pool   *fanout.BlobPool
	stats  *fanout.Stats

	listenFd int
	conns    map[int]*conn
	decoders map[int]*protocol.Decoder

	events []unix.EpollEvent
}

// New builds a Reactor. log may be nil to disable persistence.
func New(opts Options, hooks Hooks, log *mmaplog.Log, stats *fanout.Stats) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	listenFd, err := listenTCP(opts.ListenAddr)
	if err != nil {
		p.close()
		return nil, err
	}
	if err := p.add(listenFd, false); err != nil {
		unix.Close(listenFd)
		p.close()
		return nil, err
	}
	pool := fanout.NewBlobPool(protocol.MaxFrameLen)
	return &Reactor{
		opts:     opts,
		hooks:    hooks,
		poller:   p,
		log:      log,
		engine:   fanout.NewEngine(pool, opts.DropThreshold),
		pool:     pool,
		stats:    stats,
		listenFd: listenFd,
		conns:    make(map[int]*conn),
		decoders: make(map[int]*protocol.Decoder),
		events:   make([]unix.EpollEvent, 256),
	}, nil
}

// Close tears down every connection and the epoll/listen sockets.
func (r *Reactor) Close() error {
	for fd := range r.conns {
		unix.Close(fd)
	}
	unix.Close(r.listenFd)
	return r.poller.close()
}

// Run drives the event loop until ctx is cancelled. It never returns a
// non-nil error except for a fatal epoll failure. On cancellation it
// performs the graceful shutdown spec §5/§4.4 require: every Open connection
// moves to Draining, the reactor stops accepting and stops reading, but
// keeps looping — flushing outbound rings and write buffers — until every
// connection has drained and closed, then returns nil.
func (r *Reactor) Run(ctx context.Context) error {
	var tick fanout.Tick
	lastHeartbeatSweep := time.Now()
	shuttingDown := false

	for {
		if !shuttingDown {
			select {
			case <-ctx.Done():
				shuttingDown = true
				r.beginShutdownDrain()
			default:
			}
		}

		events, err := r.poller.wait(r.events, int(r.opts.PollTimeout.Microseconds()))
		if err != nil {
			return err
		}

		if len(events) == 0 && len(r.conns) == 0 {
			if r.opts.IdleSleep > 0 {
				time.Sleep(r.opts.IdleSleep)
			}
		}

		for _, ev := range events {
			fd := int(ev.Fd)
			if fd == r.listenFd {
				if !shuttingDown {
					r.acceptLoop()
				}
				continue
			}
			r.handleReady(fd, ev.Events, &tick)
		}

		// Draining every open connection's outbound ring runs once per tick
		// regardless of this tick's epoll event set — a connection that only
		// receives never raises EPOLLIN, so gating this on the event loop
		// would starve its ring forever (see DESIGN.md).
		r.drainWriteReady()
		tick.Flush(r.stats)

		if shuttingDown {
			if len(r.conns) == 0 {
				return nil
			}
			continue
		}

		if r.opts.HeartbeatTimeout > 0 && time.Since(lastHeartbeatSweep) >= r.opts.HeartbeatTimeout {
			r.sweepHeartbeats()
			lastHeartbeatSweep = time.Now()
		}
	}
}

// beginShutdownDrain moves every Open connection to Draining so the reactor
// stops decoding new frames from it while the loop keeps flushing whatever
// is already queued for delivery.
func (r *Reactor) beginShutdownDrain() {
	for _, c := range r.conns {
		if c.state == StateOpen {
			c.state = StateDraining
		}
	}
}

// acceptLoop drains every pending connection on the listen socket in one
// pass, since a single epoll readiness edge can represent several queued
// connections under load.
func (r *Reactor) acceptLoop() {
	for {
		fd, ok, err := acceptOne(r.listenFd)
		if err != nil || !ok {
			return
		}
		if r.opts.AcceptLimiter != nil && !r.opts.AcceptLimiter.Allow() {
			unix.Close(fd)
			r.stats.ConnectionsRejected.Add(1)
			continue
		}
		c := newConn(fd, r.opts.ReadBufferSize, r.opts.WriteBufferSize)
		c.lastActivity = time.Now().UnixNano()
		if err := r.poller.add(fd, false); err != nil {
			unix.Close(fd)
			continue
		}
		r.conns[fd] = c
		dec := protocol.NewDecoder()
		r.decoders[fd] = dec
		sub := fanout.NewSubscriber(uint64(fd), ring.New(r.opts.RingSize))
		c.subSlot = r.engine.Add(sub)
		r.stats.ConnectionsAccepted.Add(1)
		if r.hooks.OnAccept != nil {
			r.hooks.OnAccept(fd)
		}
	}
}

func (r *Reactor) handleReady(fd int, events uint32, tick *fanout.Tick) {
	c, ok := r.conns[fd]
	if !ok {
		return
	}
	// A Draining connection's peer already half-closed its write side (or
	// the broker is shutting down); stop decoding new frames from it and
	// let drainWriteReady finish flushing what is already queued.
	if c.state == StateOpen && events&unix.EPOLLIN != 0 {
		r.drainReadable(c, tick)
	}
}

// drainReadable performs non-blocking reads until EAGAIN, decoding and
// dispatching every complete frame as it becomes available. A read of 0
// bytes is an orderly half-close, not an error: the connection moves to
// Draining and is torn down once its outbound side empties (spec §4.4).
func (r *Reactor) drainReadable(c *conn, tick *fanout.Tick) {
	for {
		n, err := c.tryRead()
		if err == errPeerHalfClosed {
			c.state = StateDraining
			return
		}
		if err != nil {
			r.closeConn(c, err)
			return
		}
		r.decodeAndDispatch(c, tick)
		if n == 0 {
			return
		}
	}
}

func (r *Reactor) decodeAndDispatch(c *conn, tick *fanout.Tick) {
	dec := r.decoders[c.fd]
	consumedTotal := 0
	for {
		frame, n, err := dec.Next(c.readBuf[consumedTotal:c.readLen])
		if err != nil {
			if err == protocol.ErrCRCMismatch {
				r.stats.CRCErrors.Add(1)
			} else {
				r.stats.FramingErrors.Add(1)
			}
			if r.hooks.OnFramingErr != nil {
				r.hooks.OnFramingErr(c.fd, err)
			}
			c.consumeRead(c.readLen) // drop the unrecoverable tail
			r.closeConn(c, err)
			return
		}
		if n == 0 {
			break // partial frame: wait for more bytes
		}
		// raw is the exact wire bytes the producer sent, still contiguous in
		// the read buffer. Forwarding it directly (rather than re-encoding)
		// preserves the producer-assigned timestamp and avoids an
		// allocation per frame on the hot path (see DESIGN.md).
		raw := c.readBuf[consumedTotal : consumedTotal+n]
		consumedTotal += n
		c.lastActivity = time.Now().UnixNano()
		r.dispatch(c, frame, raw, tick)
	}
	c.consumeRead(consumedTotal)
}

// dispatch applies frame-type semantics (spec §4.2/§9): Publish is persisted
// then broadcast verbatim; Heartbeat only refreshes liveness; Subscribe/
// Unsubscribe are accepted but do not gate delivery — Hermes's default
// fan-out policy is unconditional broadcast to every other open connection
// (see DESIGN.md for the Open Question this resolves).
func (r *Reactor) dispatch(c *conn, frame protocol.Frame, raw []byte, tick *fanout.Tick) {
	switch frame.Header.Type {
	case protocol.Heartbeat:
		return
	case protocol.Publish, protocol.Batch:
		if r.log != nil {
			if _, err := r.log.Append(frame.Header.Type, frame.Header.Sequence, frame.Payload); err != nil {
				// Persistence is best-effort; a write failure never blocks
				// delivery (spec §4.5 Non-goals).
				_ = err
			}
		}
		closedSlots := r.engine.Broadcast(c.subSlot, raw, tick)
		r.closeSubscriberSlots(closedSlots)
	case protocol.Subscribe, protocol.Unsubscribe, protocol.Ack:
		return
	}
}

// closeSubscriberSlots tears down connections whose subscriber just crossed
// the backpressure drop threshold.
func (r *Reactor) closeSubscriberSlots(slots []int) {
	if len(slots) == 0 {
		return
	}
	want := make(map[int]bool, len(slots))
	for _, slot := range slots {
		want[slot] = true
	}
	for _, c := range r.conns {
		if want[c.subSlot] {
			r.stats.SubscribersDisconnected.Add(1)
			r.closeConn(c, errSlowSubscriber)
		}
	}
}

// syncWriteReadiness pops this connection's subscriber ring into the
// socket's write buffer and flushes it, then updates the epoll interest set
// so EPOLLOUT is only requested while bytes remain unflushed. Ring entries
// are only popped while the write buffer is empty; anything the socket did
// not accept stays queued for the next tick.
func (r *Reactor) syncWriteReadiness(c *conn) {
	if c.state == StateClosed {
		return
	}
	if c.pendingWrite() {
		// Retry a short write left over from the previous tick before
		// queueing anything new, so the buffer doesn't grow unbounded.
		if err := c.flushPending(); err != nil {
			r.closeConn(c, err)
			return
		}
	}
	sub := r.subscriberFor(c)
	for sub != nil && !c.pendingWrite() {
		entry, ok := sub.Ring.TryPop()
		if !ok {
			break
		}
		c.queueWrite(entry.Buf[:entry.Len])
		r.pool.Put(entry.Buf)
		if err := c.flushPending(); err != nil {
			r.closeConn(c, err)
			return
		}
	}
	r.poller.modify(c.fd, c.pendingWrite())
}

// drainWriteReady sweeps every non-closed connection once per reactor tick,
// independent of which fds epoll reported ready this tick. A pure subscriber
// never raises EPOLLIN and nothing else would ever call syncWriteReadiness
// for it, so without this sweep Broadcast's pushes into its ring would sit
// there forever (see DESIGN.md). It also completes the Draining → Closed
// transition once a draining connection's ring and write buffer are empty.
func (r *Reactor) drainWriteReady() {
	for _, c := range r.conns {
		if c.state == StateClosed {
			continue
		}
		r.syncWriteReadiness(c)
		if c.state == StateDraining && !c.pendingWrite() && !r.subscriberPending(c) {
			r.closeConn(c, nil)
		}
	}
}

func (r *Reactor) subscriberFor(c *conn) *fanout.Subscriber {
	return r.engine.SubscriberAt(c.subSlot)
}

func (r *Reactor) subscriberPending(c *conn) bool {
	sub := r.subscriberFor(c)
	return sub != nil && sub.Ring.Len() > 0
}

func (r *Reactor) sweepHeartbeats() {
	now := time.Now().UnixNano()
	timeout := r.opts.HeartbeatTimeout.Nanoseconds()
	for _, c := range r.conns {
		if now-c.lastActivity > timeout {
			r.closeConn(c, errHeartbeatTimeout)
		}
	}
}

func (r *Reactor) closeConn(c *conn, reason error) {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	r.poller.remove(c.fd)
	unix.Close(c.fd)
	if c.subSlot >= 0 {
		r.engine.Remove(c.subSlot)
	}
	delete(r.conns, c.fd)
	delete(r.decoders, c.fd)
	r.stats.ConnectionsClosed.Add(1)
	if r.hooks.OnClose != nil {
		r.hooks.OnClose(c.fd, reason)
	}
}
