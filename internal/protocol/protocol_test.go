package protocol_test

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/nirvagold/hermes/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 32, 64, 4096, protocol.MaxPayloadLen}
	for _, size := range sizes {
		payload := bytes.Repeat([]byte{0xAB}, size)
		enc := protocol.NewEncoder(0)
		wire, err := enc.Encode(protocol.Publish, 42, payload)
		if err != nil {
			t.Fatalf("size %d: encode: %v", size, err)
		}

		dec := protocol.NewDecoder()
		frame, n, err := dec.Next(wire)
		if err != nil {
			t.Fatalf("size %d: decode: %v", size, err)
		}
		if n != len(wire) {
			t.Fatalf("size %d: consumed %d, want %d", size, n, len(wire))
		}
		if frame.Header.Type != protocol.Publish {
			t.Fatalf("size %d: type = %v, want Publish", size, frame.Header.Type)
		}
		if frame.Header.Sequence != 42 {
			t.Fatalf("size %d: sequence = %d, want 42", size, frame.Header.Sequence)
		}
		if int(frame.Header.PayloadLen) != size {
			t.Fatalf("size %d: payload_len = %d", size, frame.Header.PayloadLen)
		}
		if frame.Header.CRC32 != crc32.ChecksumIEEE(payload) {
			t.Fatalf("size %d: crc mismatch", size)
		}
		if !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("size %d: payload mismatch", size)
		}
	}
}

func TestOversizePayloadRejected(t *testing.T) {
	enc := protocol.NewEncoder(0)
	_, err := enc.Encode(protocol.Publish, 1, make([]byte, protocol.MaxPayloadLen+1))
	if err != protocol.ErrPayloadTooLarge {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestPartialFrameReturnsNoFrame(t *testing.T) {
	enc := protocol.NewEncoder(0)
	wire, _ := enc.Encode(protocol.Publish, 1, []byte("hello"))

	dec := protocol.NewDecoder()
	for n := 0; n < len(wire); n++ {
		f, consumed, err := dec.Next(wire[:n])
		if err != nil {
			t.Fatalf("prefix %d: unexpected error %v", n, err)
		}
		if consumed != 0 || f.Payload != nil {
			t.Fatalf("prefix %d: expected no frame, got consumed=%d", n, consumed)
		}
	}
}

func TestBatchOfCompleteFramesPlusTrailingPartial(t *testing.T) {
	enc := protocol.NewEncoder(0)
	var buf bytes.Buffer
	const k = 10
	for i := 0; i < k; i++ {
		wire, _ := enc.Encode(protocol.Publish, uint64(100+i), []byte{byte(i)})
		buf.Write(wire)
	}
	// Trailing partial frame: fewer than 32 header bytes.
	trailing := []byte{0x48, 0x52, 0x4D}
	buf.Write(trailing)

	dec := protocol.NewDecoder()
	frames, consumed, err := dec.DecodeAll(buf.Bytes(), make([]protocol.Frame, 0, 16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != k {
		t.Fatalf("got %d frames, want %d", len(frames), k)
	}
	for i, f := range frames {
		if f.Header.Sequence != uint64(100+i) {
			t.Fatalf("frame %d: sequence = %d, want %d", i, f.Header.Sequence, 100+i)
		}
	}
	if consumed != buf.Len()-len(trailing) {
		t.Fatalf("consumed = %d, want %d", consumed, buf.Len()-len(trailing))
	}
}

func TestBadMagicIsFraming(t *testing.T) {
	enc := protocol.NewEncoder(0)
	wire, _ := enc.Encode(protocol.Publish, 1, []byte("x"))
	corrupt := append([]byte(nil), wire...)
	corrupt[0] ^= 0xFF

	dec := protocol.NewDecoder()
	_, _, err := dec.Next(corrupt)
	if err != protocol.ErrFraming {
		t.Fatalf("err = %v, want ErrFraming", err)
	}
}

func TestOversizePayloadLenIsFraming(t *testing.T) {
	enc := protocol.NewEncoder(0)
	wire, _ := enc.Encode(protocol.Publish, 1, []byte("x"))
	corrupt := append([]byte(nil), wire...)
	// payload_len field at offset 24..28; force an out-of-range value.
	corrupt[24], corrupt[25], corrupt[26], corrupt[27] = 0xFF, 0xFF, 0xFF, 0x7F

	dec := protocol.NewDecoder()
	_, _, err := dec.Next(corrupt)
	if err != protocol.ErrFraming {
		t.Fatalf("err = %v, want ErrFraming", err)
	}
}

func TestCRCCorruptionDetected(t *testing.T) {
	enc := protocol.NewEncoder(0)
	wire, _ := enc.Encode(protocol.Publish, 1, []byte("hello"))
	corrupt := append([]byte(nil), wire...)
	corrupt[28] ^= 1 // XOR the low byte of crc32

	dec := protocol.NewDecoder()
	_, _, err := dec.Next(corrupt)
	if err != protocol.ErrCRCMismatch {
		t.Fatalf("err = %v, want ErrCRCMismatch", err)
	}
}

func TestEncodeBatch(t *testing.T) {
	enc := protocol.NewEncoder(0)
	items := []struct {
		Sequence uint64
		Payload  []byte
	}{
		{Sequence: 1, Payload: []byte("a")},
		{Sequence: 2, Payload: []byte("bb")},
		{Sequence: 3, Payload: []byte("ccc")},
	}
	wire, err := enc.EncodeBatch(protocol.Publish, items)
	if err != nil {
		t.Fatalf("encode batch: %v", err)
	}

	dec := protocol.NewDecoder()
	frames, consumed, err := dec.DecodeAll(wire, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	if len(frames) != len(items) {
		t.Fatalf("got %d frames, want %d", len(frames), len(items))
	}
	for i, f := range frames {
		if f.Header.Sequence != items[i].Sequence {
			t.Fatalf("frame %d: sequence mismatch", i)
		}
		if !bytes.Equal(f.Payload, items[i].Payload) {
			t.Fatalf("frame %d: payload mismatch", i)
		}
	}
}

func TestSplitAcrossThreeReads(t *testing.T) {
	enc := protocol.NewEncoder(0)
	wire, _ := enc.Encode(protocol.Publish, 7, bytes.Repeat([]byte{1}, 64))

	// header(32) | partial-payload(16) | remainder(48) — three chunks
	// mirroring a frame split across three TCP reads.
	chunk1 := wire[:32]
	chunk2 := wire[32:48]
	chunk3 := wire[48:]

	dec := protocol.NewDecoder()
	var buf []byte

	buf = append(buf, chunk1...)
	if _, n, _ := dec.Next(buf); n != 0 {
		t.Fatalf("after header only: expected no frame, got n=%d", n)
	}

	buf = append(buf, chunk2...)
	if _, n, _ := dec.Next(buf); n != 0 {
		t.Fatalf("after partial payload: expected no frame, got n=%d", n)
	}

	buf = append(buf, chunk3...)
	frame, n, err := dec.Next(buf)
	if err != nil {
		t.Fatalf("after full frame: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("n = %d, want %d", n, len(wire))
	}
	if frame.Header.Sequence != 7 {
		t.Fatalf("sequence = %d, want 7", frame.Header.Sequence)
	}
}
