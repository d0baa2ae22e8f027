// Package protocol implements Hermes's framed binary wire protocol: a fixed
// 32-byte header, CRC-32 payload checksum, and a decoder that walks frames
// in place over a caller-owned buffer without copying payload bytes.
package protocol

import "encoding/binary"

// Magic identifies a Hermes frame on the wire ("HRMS").
const Magic uint32 = 0x48524D53

// Version is the current protocol version.
const Version uint8 = 1

// Type enumerates frame kinds carried in the header's type field.
type Type uint8

const (
	Publish     Type = 1
	Subscribe   Type = 2
	Unsubscribe Type = 3
	Ack         Type = 4
	Heartbeat   Type = 5
	Batch       Type = 6
)

// HeaderLen is the fixed, wire-exact size of a frame header in bytes.
const HeaderLen = 32

// MaxPayloadLen is the largest payload a single frame may carry.
const MaxPayloadLen = 65536

// MaxFrameLen is HeaderLen + MaxPayloadLen, the largest possible frame.
const MaxFrameLen = HeaderLen + MaxPayloadLen

// Header is the 32-byte frame header, fields in wire order, little-endian.
// Header is never cast directly over a byte buffer (Go gives no portable
// guarantee that a struct's in-memory layout matches this wire layout on
// every platform/compiler); Put/headerFromBytes below read and write the
// buffer field-by-field instead, which costs nothing extra since each field
// is already accessed individually by encode/decode.
type Header struct {
	Magic        uint32
	Version      uint8
	Type         Type
	Flags        uint16
	Sequence     uint64
	TimestampNs  int64
	PayloadLen   uint32
	CRC32        uint32
}

// Put writes h into b, which must be at least HeaderLen bytes.
func (h Header) Put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	b[4] = h.Version
	b[5] = byte(h.Type)
	binary.LittleEndian.PutUint16(b[6:8], h.Flags)
	binary.LittleEndian.PutUint64(b[8:16], h.Sequence)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.TimestampNs))
	binary.LittleEndian.PutUint32(b[24:28], h.PayloadLen)
	binary.LittleEndian.PutUint32(b[28:32], h.CRC32)
}

// headerFromBytes parses a Header from b, which must be at least HeaderLen
// bytes. It performs no validation; callers check Magic/PayloadLen.
func headerFromBytes(b []byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     b[4],
		Type:        Type(b[5]),
		Flags:       binary.LittleEndian.Uint16(b[6:8]),
		Sequence:    binary.LittleEndian.Uint64(b[8:16]),
		TimestampNs: int64(binary.LittleEndian.Uint64(b[16:24])),
		PayloadLen:  binary.LittleEndian.Uint32(b[24:28]),
		CRC32:       binary.LittleEndian.Uint32(b[28:32]),
	}
}
