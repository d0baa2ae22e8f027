package reactor

import (
	"golang.org/x/sys/unix"
)

// State is a connection's position in the lifecycle spec §4.3 describes:
// Connecting -> Open -> Draining -> Closed. Hermes has no handshake beyond
// the TCP accept, so a connection enters Open immediately and never revisits
// Connecting.
type State uint8

const (
	StateConnecting State = iota
	StateOpen
	StateDraining
	StateClosed
)

// conn is one accepted socket plus its read/write buffers and fan-out slot.
// All fields are touched only from the reactor goroutine, which also pops
// the subscriber ring at subSlot into writeBuf.
type conn struct {
	fd    int
	state State

	readBuf []byte
	readLen int // valid bytes at the front of readBuf

	writeBuf []byte
	writeLen int // unflushed bytes at the front of writeBuf

	subSlot int // this connection's slot in the fan-out engine, -1 until registered

	lastActivity int64 // unix nanos, set at accept and updated on every decoded frame
}

func newConn(fd int, readBufSize, writeBufSize int) *conn {
	return &conn{
		fd:       fd,
		state:    StateOpen,
		readBuf:  make([]byte, readBufSize),
		writeBuf: make([]byte, writeBufSize),
		subSlot:  -1,
	}
}

// tryRead performs one non-blocking read into the tail of readBuf. If the
// buffer has no room left it reads nothing and returns errReadBufferFull
// (compaction happens in consumeRead). It returns the number of bytes read;
// n == 0 with err == nil means EAGAIN (no data currently available), which is
// the common case in a busy-poll loop, not an error.
func (c *conn) tryRead() (n int, err error) {
	if c.readLen == len(c.readBuf) {
		// consumeRead already compacts after every decode pass, so a still-
		// full buffer means the peer has a frame in flight larger than the
		// configured read buffer. Treat as a hard error rather than spin.
		return 0, errReadBufferFull
	}
	n, err = unix.Read(c.fd, c.readBuf[c.readLen:])
	if err == unix.EAGAIN {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errPeerHalfClosed
	}
	c.readLen += n
	return n, nil
}

// consumeRead removes the first n bytes of the unread region after the
// decoder has consumed them, sliding the remainder to the front of the
// buffer so the next tryRead has maximal contiguous space.
func (c *conn) consumeRead(n int) {
	if n <= 0 {
		return
	}
	remaining := c.readLen - n
	if remaining > 0 {
		copy(c.readBuf[0:remaining], c.readBuf[n:c.readLen])
	}
	c.readLen = remaining
}

// queueWrite appends b to the pending write buffer, growing it if needed.
// Hermes's write buffers are sized generously (spec default 128 KiB) so
// growth in steady state should never happen; it exists only so a burst
// cannot corrupt data, matching the teacher's pump_write.go overflow path.
func (c *conn) queueWrite(b []byte) {
	need := c.writeLen + len(b)
	if need > len(c.writeBuf) {
		grown := make([]byte, need)
		copy(grown, c.writeBuf[:c.writeLen])
		c.writeBuf = grown
	}
	copy(c.writeBuf[c.writeLen:need], b)
	c.writeLen = need
}

// flushPending performs one non-blocking write of whatever is queued. A
// short write is normal under backpressure: the unwritten remainder stays in
// writeBuf for the next readiness event.
func (c *conn) flushPending() error {
	if c.writeLen == 0 {
		return nil
	}
	n, err := unix.Write(c.fd, c.writeBuf[:c.writeLen])
	if err == unix.EAGAIN {
		return nil
	}
	if err != nil {
		return err
	}
	if n < c.writeLen {
		copy(c.writeBuf[0:c.writeLen-n], c.writeBuf[n:c.writeLen])
	}
	c.writeLen -= n
	return nil
}

// pendingWrite reports whether this connection still has unflushed bytes
// and therefore needs EPOLLOUT readiness.
func (c *conn) pendingWrite() bool { return c.writeLen > 0 }
