// Package chunk defines the unit of data handed between the pipeline
// reader and its consumers (spec §3 "Chunk"), including the reference-
// counted sharing discipline spec §9 describes for fan-out delivery:
// "Broadcast delivery wraps each chunk in a shared reference counted by
// subscribers ... No chunk is ever copied per subscriber; the cost of
// fan-out is the atomic ref-count."
package chunk

import (
	"sync/atomic"

	"github.com/anidbgo/anidbclient/internal/memory"
)

// Chunk is a variable-length byte span tagged with a monotonically
// increasing sequence number and an end-of-stream flag.
type Chunk struct {
	Buf     *memory.Buffer
	Seq     uint64
	EOF     bool
	release func()
	retain  func() // non-nil only for chunks obtained from NewShared
}

// New wraps buf as chunk seq with a single release callback, for
// single-owner delivery paths (e.g. ringbuffer.Cursor.Next).
func New(buf *memory.Buffer, seq uint64, eof bool, release func()) Chunk {
	return Chunk{Buf: buf, Seq: seq, EOF: eof, release: release}
}

// Bytes returns the chunk's valid byte span.
func (c Chunk) Bytes() []byte {
	return c.Buf.Bytes()
}

// Release returns the chunk's backing buffer. Safe to call exactly once
// per Chunk value obtained from New, or per Retain()'d handle from a
// shared chunk.
func (c Chunk) Release() {
	if c.release != nil {
		c.release()
	}
}

type shared struct {
	mgr *memory.Manager
	buf *memory.Buffer
	ref int32 // atomic
}

// NewShared wraps buf with an atomic reference count starting at one,
// for broadcast fan-out to multiple independent subscribers (spec
// §4.4.3, §9). The caller owns that first reference; any code that
// needs to keep the chunk alive past its own Release must call Retain
// first to take an additional reference. The underlying buffer returns
// to mgr when the count reaches zero.
func NewShared(mgr *memory.Manager, buf *memory.Buffer, seq uint64, eof bool) Chunk {
	s := &shared{mgr: mgr, buf: buf, ref: 1}
	return Chunk{Buf: buf, Seq: seq, EOF: eof, release: s.release, retain: s.retain}
}

// Retain takes an additional reference on a chunk obtained from
// NewShared, returning a handle that must itself be Released exactly
// once. Retaining a Chunk obtained from New (single-owner) is a no-op.
func (c Chunk) Retain() Chunk {
	if c.retain != nil {
		c.retain()
	}
	return c
}

func (s *shared) retain() {
	atomic.AddInt32(&s.ref, 1)
}

func (s *shared) release() {
	if atomic.AddInt32(&s.ref, -1) == 0 {
		s.mgr.Release(s.buf)
	}
}
