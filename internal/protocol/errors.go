package protocol

import "errors"

var (
	// ErrFraming reports a frame whose magic is wrong or whose payload_len
	// exceeds MaxPayloadLen. Fatal for the connection that produced it.
	ErrFraming = errors.New("protocol: framing error")

	// ErrCRCMismatch reports a frame whose computed CRC-32 does not match
	// the header's crc32 field. Fatal for the connection that produced it.
	ErrCRCMismatch = errors.New("protocol: crc mismatch")

	// ErrPayloadTooLarge reports an encode call whose payload exceeds
	// MaxPayloadLen.
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds max frame payload size")

	// ErrShortBuffer reports an encode call whose destination buffer cannot
	// hold the frame.
	ErrShortBuffer = errors.New("protocol: destination buffer too small")
)
