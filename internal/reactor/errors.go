package reactor

import "errors"

var (
	// errPeerHalfClosed is returned internally when a read returns n == 0,
	// meaning the peer performed an orderly shutdown of its write side. This
	// moves the connection to Draining rather than closing it outright — it
	// may still have queued outbound frames to deliver (spec §4.4).
	errPeerHalfClosed = errors.New("reactor: peer half-closed connection")

	// errReadBufferFull is returned when a connection's read buffer is
	// completely full of not-yet-decoded bytes, meaning the peer is sending a
	// frame larger than the configured read buffer.
	errReadBufferFull = errors.New("reactor: read buffer full without a decodable frame")

	// errHeartbeatTimeout is returned when a connection has produced no
	// complete frame for longer than the configured heartbeat timeout.
	errHeartbeatTimeout = errors.New("reactor: heartbeat timeout")

	// errSlowSubscriber is returned when the fan-out engine closes a
	// connection for exceeding the consecutive-drop backpressure threshold.
	errSlowSubscriber = errors.New("reactor: subscriber exceeded drop threshold")
)
