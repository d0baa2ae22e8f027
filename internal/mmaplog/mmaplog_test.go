package mmaplog_test

import (
	"path/filepath"
	"testing"

	"github.com/nirvagold/hermes/internal/mmaplog"
	"github.com/nirvagold/hermes/internal/protocol"
)

func TestAppendReadBackRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hermes_data.dat")
	l, err := mmaplog.Open(path, 64*1024)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	off, err := l.Append(protocol.Publish, 1, []byte("hello"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	frame, _, err := l.ReadAt(off)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(frame.Payload) != "hello" {
		t.Fatalf("payload = %q, want %q", frame.Payload, "hello")
	}
	if frame.Header.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", frame.Header.Sequence)
	}
	if l.Sequence() != 1 {
		t.Fatalf("log sequence = %d, want 1", l.Sequence())
	}
}

func TestWrapsAtCapacityBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hermes_data.dat")
	// Data region sized to exactly fit two frames of this payload size.
	payload := make([]byte, 32)
	frameLen := int64(protocol.HeaderLen + len(payload))
	capacity := mmaplog.HeaderLen + 2*frameLen
	l, err := mmaplog.Open(path, capacity)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	off0, err := l.Append(protocol.Publish, 1, payload)
	if err != nil {
		t.Fatalf("append 0: %v", err)
	}
	if off0 != 0 {
		t.Fatalf("off0 = %d, want 0", off0)
	}
	off1, err := l.Append(protocol.Publish, 2, payload)
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if off1 != frameLen {
		t.Fatalf("off1 = %d, want %d", off1, frameLen)
	}
	// Third append should wrap back to offset 0, overwriting the first frame.
	off2, err := l.Append(protocol.Publish, 3, payload)
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if off2 != 0 {
		t.Fatalf("off2 = %d, want 0 (wrap)", off2)
	}
	frame, _, err := l.ReadAt(off2)
	if err != nil {
		t.Fatalf("read wrapped frame: %v", err)
	}
	if frame.Header.Sequence != 3 {
		t.Fatalf("sequence = %d, want 3", frame.Header.Sequence)
	}
}

func TestFrameLargerThanCapacityRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hermes_data.dat")
	l, err := mmaplog.Open(path, mmaplog.HeaderLen+128)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	_, err = l.Append(protocol.Publish, 1, make([]byte, 4096))
	if err == nil {
		t.Fatalf("expected error for oversize frame")
	}
}

func TestReopenRecoversHeaderState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hermes_reopen.dat")
	l1, err := mmaplog.Open(path, 64*1024)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l1.Append(protocol.Publish, 1, []byte("a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l1.Append(protocol.Publish, 2, []byte("b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	wantSeq := l1.Sequence()
	wantOff := l1.WriteOffset()
	if err := l1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	l2, err := mmaplog.Open(path, 64*1024)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if l2.Sequence() != wantSeq {
		t.Fatalf("sequence = %d, want %d", l2.Sequence(), wantSeq)
	}
	if l2.WriteOffset() != wantOff {
		t.Fatalf("write offset = %d, want %d", l2.WriteOffset(), wantOff)
	}
}
