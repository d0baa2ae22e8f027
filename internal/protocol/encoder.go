package protocol

import (
	"hash/crc32"
	"time"
)

// Encoder writes frames into a reusable output buffer. It is not safe for
// concurrent use; each producer connection owns one.
type Encoder struct {
	buf []byte
	n   int
}

// NewEncoder returns an Encoder with a pre-allocated buffer sized to hold at
// least one maximum-size frame plus headroom for encodeBatch.
func NewEncoder(capacityHint int) *Encoder {
	if capacityHint < MaxFrameLen {
		capacityHint = MaxFrameLen
	}
	return &Encoder{buf: make([]byte, capacityHint)}
}

// Reset invalidates any slice previously returned by Encode/EncodeBatch and
// reclaims the buffer for the next call.
func (e *Encoder) Reset() { e.n = 0 }

// Encode writes one frame (header + payload) into the encoder's buffer,
// growing it if necessary, and returns a slice of the buffer's used region.
// The returned slice is invalidated by the next call to Reset.
func (e *Encoder) Encode(typ Type, sequence uint64, payload []byte) ([]byte, error) {
	e.Reset()
	return e.appendFrame(typ, sequence, payload)
}

// EncodeBatch writes multiple independent frames contiguously into the
// encoder's buffer and returns one slice spanning all of them. The default
// encoding simply concatenates frames; it does not wrap them in a Batch-type
// envelope.
func (e *Encoder) EncodeBatch(typ Type, items []struct {
	Sequence uint64
	Payload  []byte
}) ([]byte, error) {
	e.Reset()
	for _, it := range items {
		if _, err := e.appendFrame(typ, it.Sequence, it.Payload); err != nil {
			return nil, err
		}
	}
	return e.buf[:e.n], nil
}

func (e *Encoder) appendFrame(typ Type, sequence uint64, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLarge
	}
	need := e.n + HeaderLen + len(payload)
	if need > len(e.buf) {
		grown := make([]byte, need*2)
		copy(grown, e.buf[:e.n])
		e.buf = grown
	}
	h := Header{
		Magic:       Magic,
		Version:     Version,
		Type:        typ,
		Sequence:    sequence,
		TimestampNs: time.Now().UnixNano(),
		PayloadLen:  uint32(len(payload)),
		CRC32:       crc32.ChecksumIEEE(payload),
	}
	h.Put(e.buf[e.n : e.n+HeaderLen])
	copy(e.buf[e.n+HeaderLen:e.n+HeaderLen+len(payload)], payload)
	e.n += HeaderLen + len(payload)
	return e.buf[:e.n], nil
}
