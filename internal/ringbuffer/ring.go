// Package ringbuffer implements the lock-free-adjacent single-writer /
// multi-reader slotted ring described in spec §4.3: N consumers each
// read the same chunk stream at their own pace from a fixed-size ring,
// with per-slot atomic reference counts gating reuse.
//
// Grounded on the disruptor-pattern reference file in the example pack
// (power-of-two-free slot ring, sequence-gated reads) and on the
// original Rust source's buffer_ring.rs wrap-around sequence compare.
package ringbuffer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/anidbgo/anidbclient/internal/chunk"
	"github.com/anidbgo/anidbclient/internal/memory"
)

// DefaultCapacity is the ring's default slot count (spec §3, §4.3).
const DefaultCapacity = 32

type slot struct {
	buf *memory.Buffer
	n   int
	seq uint64
	eof bool
	ref int32 // atomic
}

// Ring is a fixed-capacity, single-writer, multi-consumer slotted ring
// buffer. A slot is free iff its ref-count is zero (spec §3).
type Ring struct {
	slots        []slot
	numConsumers int

	mu        sync.Mutex
	cond      *sync.Cond
	writerSeq uint64 // next sequence number the writer will assign
	complete  bool
}

// New builds a ring with the given slot capacity, sized for
// numConsumers independent readers.
func New(capacity, numConsumers int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if numConsumers <= 0 {
		numConsumers = 1
	}
	r := &Ring{
		slots:        make([]slot, capacity),
		numConsumers: numConsumers,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Capacity returns the number of slots in the ring.
func (r *Ring) Capacity() int { return len(r.slots) }

// waitLocked waits on r.cond, honoring ctx cancellation. Must be called
// with r.mu held; returns with r.mu held in both outcomes. Returns
// false if ctx was done.
func (r *Ring) waitLocked(ctx context.Context) bool {
	if ctx == nil || ctx.Done() == nil {
		r.cond.Wait()
		return true
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		case <-stop:
		}
	}()
	r.cond.Wait()
	close(stop)
	select {
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

// Write installs buf (with n valid bytes) as the next sequence number,
// blocking until the target slot's ref-count reaches zero (back-
// pressure, spec §4.3). At most one Write call should be in flight at
// a time (single writer, per spec §5).
func (r *Ring) Write(ctx context.Context, buf *memory.Buffer, n int, eof bool) error {
	r.mu.Lock()
	idx := r.writerSeq % uint64(len(r.slots))
	for atomic.LoadInt32(&r.slots[idx].ref) != 0 {
		if !r.waitLocked(ctx) {
			r.mu.Unlock()
			return ctx.Err()
		}
	}
	s := &r.slots[idx]
	s.buf = buf
	s.n = n
	s.eof = eof
	s.seq = r.writerSeq
	atomic.StoreInt32(&s.ref, int32(r.numConsumers))
	r.writerSeq++
	r.cond.Broadcast()
	r.mu.Unlock()
	return nil
}

// MarkComplete signals end-of-stream: consumers that have drained every
// produced chunk observe end-of-stream rather than blocking forever.
func (r *Ring) MarkComplete() {
	r.mu.Lock()
	r.complete = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Cursor tracks one consumer's read position. Each consumer of a ring
// must use its own Cursor (spec §4.3: "a consumer keeps its own read
// cursor").
type Cursor struct {
	r    *Ring
	next uint64
}

// NewCursor returns a cursor starting at sequence 0. Create exactly
// numConsumers cursors for a ring, since slot ref-counts are seeded
// from that count.
func (r *Ring) NewCursor() *Cursor {
	return &Cursor{r: r}
}

// Next blocks until sequence c.next is available, returning it as a
// Chunk, or returns ok=false once the writer has marked the stream
// complete and this cursor has drained everything produced.
func (c *Cursor) Next(ctx context.Context) (chunk.Chunk, bool, error) {
	r := c.r
	r.mu.Lock()
	idx := c.next % uint64(len(r.slots))
	for {
		s := &r.slots[idx]
		if s.seq == c.next && atomic.LoadInt32(&s.ref) > 0 {
			break
		}
		if r.complete && c.next >= r.writerSeq {
			r.mu.Unlock()
			return chunk.Chunk{}, false, nil
		}
		if !r.waitLocked(ctx) {
			r.mu.Unlock()
			return chunk.Chunk{}, false, ctx.Err()
		}
	}
	s := &r.slots[idx]
	buf, n, eof, seq := s.buf, s.n, s.eof, s.seq
	r.mu.Unlock()

	slotPtr := &r.slots[idx]
	release := func() {
		if atomic.AddInt32(&slotPtr.ref, -1) == 0 {
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		}
	}
	c.next++
	_ = n // n mirrors buf.Len(); buffers are sized exactly to their chunk at allocation
	return chunk.New(buf, seq, eof, release), true, nil
}
