// Package mmaplog implements Hermes's best-effort persistence: a single
// file, pre-extended to a fixed capacity and memory-mapped, holding a
// circular log of every successfully decoded frame. There is no
// compaction and no explicit sync on the hot path — the OS page cache
// owns flushing, and a crash leaves whatever the kernel has written.
package mmaplog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/nirvagold/hermes/internal/protocol"
)

// HeaderLen is the fixed size of the log's file header.
const HeaderLen = 64

const logMagic uint32 = 0x484C4F47 // "HLOG"
const logVersion uint32 = 1

// Log is a memory-mapped, fixed-capacity circular append log.
type Log struct {
	file *os.File
	data []byte // full mapping, header + data region

	capacity    int64 // total file size
	dataCap     int64 // capacity - HeaderLen

	writeOffset atomic.Int64 // next write position within the data region, 0-based
	sequence    atomic.Uint64
}

// Open creates (if necessary), pre-extends to capacity, and memory-maps
// path. Mapping failure is fatal to the caller — Open returns an error the
// caller should treat as a startup failure (spec §6/§7).
func Open(path string, capacity int64) (*Log, error) {
	if capacity <= HeaderLen {
		return nil, fmt.Errorf("mmaplog: capacity %d must exceed header size %d", capacity, HeaderLen)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmaplog: open %s: %w", path, err)
	}

	if err := f.Truncate(capacity); err != nil {
		f.Close()
		return nil, fmt.Errorf("mmaplog: extend %s to %d bytes: %w", path, capacity, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmaplog: mmap %s: %w", path, err)
	}

	l := &Log{
		file:     f,
		data:     data,
		capacity: capacity,
		dataCap:  capacity - HeaderLen,
	}

	existingMagic := binary.LittleEndian.Uint32(data[0:4])
	if existingMagic == logMagic {
		l.writeOffset.Store(int64(binary.LittleEndian.Uint64(data[8:16])))
		l.sequence.Store(binary.LittleEndian.Uint64(data[16:24]))
	} else {
		binary.LittleEndian.PutUint32(data[0:4], logMagic)
		binary.LittleEndian.PutUint32(data[4:8], logVersion)
	}
	return l, nil
}

// Close unmaps and closes the backing file.
func (l *Log) Close() error {
	if err := unix.Munmap(l.data); err != nil {
		l.file.Close()
		return fmt.Errorf("mmaplog: munmap: %w", err)
	}
	return l.file.Close()
}

// Append copies header+payload for a decoded frame into the mapped region at
// the current write offset, advances the offset (wrapping to the start of
// the data region on overflow), and atomically publishes the new sequence
// and write_offset. It returns the data-region offset the frame was written
// at. Append fails only when the frame itself (32 + len(payload)) exceeds
// the log's data capacity — it never fails merely because the log is full,
// since a full log wraps and overwrites the oldest data.
func (l *Log) Append(typ protocol.Type, sequence uint64, payload []byte) (offset int64, err error) {
	frameLen := int64(protocol.HeaderLen + len(payload))
	if frameLen > l.dataCap {
		return 0, fmt.Errorf("mmaplog: frame of %d bytes exceeds data capacity %d", frameLen, l.dataCap)
	}

	off := l.writeOffset.Load()
	if off+frameLen > l.dataCap {
		off = 0
	}

	h := protocol.Header{
		Magic:      protocol.Magic,
		Version:    protocol.Version,
		Type:       typ,
		Sequence:   sequence,
		PayloadLen: uint32(len(payload)),
		CRC32:      crc32.ChecksumIEEE(payload),
	}
	dst := l.data[HeaderLen+off : HeaderLen+off+frameLen]
	h.Put(dst[:protocol.HeaderLen])
	copy(dst[protocol.HeaderLen:], payload)

	next := off + frameLen
	if next >= l.dataCap {
		next = 0
	}
	l.writeOffset.Store(next)
	newSeq := l.sequence.Add(1)

	binary.LittleEndian.PutUint64(l.data[8:16], uint64(next))
	binary.LittleEndian.PutUint64(l.data[16:24], newSeq)

	return off, nil
}

// ReadAt returns a zero-copy view of a previously written frame at the given
// data-region offset. Used by offline tooling, not the hot path. A
// concurrent writer may have partially overwritten the frame (wrap-around
// racing a reader); ReadAt decodes with CRC verification enabled, so such a
// frame comes back as protocol.ErrCRCMismatch or protocol.ErrFraming.
func (l *Log) ReadAt(offset int64) (protocol.Frame, int, error) {
	if offset < 0 || offset+protocol.HeaderLen > l.dataCap {
		return protocol.Frame{}, 0, fmt.Errorf("mmaplog: offset %d out of range", offset)
	}
	dec := protocol.NewDecoder()
	return dec.Next(l.data[HeaderLen+offset:])
}

// Sequence returns the current monotonic frame counter.
func (l *Log) Sequence() uint64 { return l.sequence.Load() }

// WriteOffset returns the current write cursor within the data region.
func (l *Log) WriteOffset() int64 { return l.writeOffset.Load() }

// DataCapacity returns the size of the circular data region (file capacity
// minus the header).
func (l *Log) DataCapacity() int64 { return l.dataCap }
