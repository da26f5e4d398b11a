package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/anidbgo/anidbclient/internal/chunk"
	"github.com/anidbgo/anidbclient/internal/hash"
	"github.com/anidbgo/anidbclient/internal/memory"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// HashingStage feeds every chunk to one or more hash.Hasher instances,
// per spec §4.4.3's "hashing stage". With Parallel set it fans each
// chunk out to one goroutine per requested algorithm over a bounded
// channel (depth chanDepth), matching the pipeline's two-deep back-
// pressure described in the original Rust source's pipeline/hashing.rs.
// Without Parallel it updates every hasher inline, cheapest when the
// caller already runs one goroutine per file (spec §4.4.2 "Sequential").
type HashingStage struct {
	Hashes   hash.Set
	Config   hash.Config
	Parallel bool

	hashers map[hash.Type]hash.Hasher
	chans   map[hash.Type]chan chunk.Chunk
	wg      sync.WaitGroup

	mu      sync.Mutex
	results map[hash.Type]string
	size    int64
}

const chanDepth = 2

// Results returns the finalized digest per requested algorithm. Valid
// only after Finalize returns.
func (s *HashingStage) Results() map[hash.Type]string {
	return s.results
}

// Size returns the total byte count observed, valid after Finalize.
func (s *HashingStage) Size() int64 { return s.size }

func (s *HashingStage) Initialize(totalSize int64) error {
	s.hashers = make(map[hash.Type]hash.Hasher, s.Hashes.Count())
	for _, t := range s.Hashes.Array() {
		h, err := hash.NewHasher(t, s.Config)
		if err != nil {
			return fmt.Errorf("hashing stage: %w", err)
		}
		s.hashers[t] = h
	}

	if !s.Parallel {
		return nil
	}
	s.chans = make(map[hash.Type]chan chunk.Chunk, len(s.hashers))
	for t, h := range s.hashers {
		ch := make(chan chunk.Chunk, chanDepth)
		s.chans[t] = ch
		s.wg.Add(1)
		go s.runWorker(h, ch)
	}
	return nil
}

func (s *HashingStage) runWorker(h hash.Hasher, ch chan chunk.Chunk) {
	defer s.wg.Done()
	for c := range ch {
		h.Update(c.Bytes())
		c.Release()
	}
}

func (s *HashingStage) Process(ctx context.Context, c chunk.Chunk) error {
	s.size += int64(len(c.Bytes()))

	if !s.Parallel {
		for _, h := range s.hashers {
			h.Update(c.Bytes())
		}
		return nil
	}

	for _, ch := range s.chans {
		select {
		case ch <- c.Retain():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *HashingStage) Finalize() error {
	if s.Parallel {
		for _, ch := range s.chans {
			close(ch)
		}
		s.wg.Wait()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make(map[hash.Type]string, len(s.hashers))
	for t, h := range s.hashers {
		s.results[t] = h.Finalize()
	}
	return nil
}

// ConditionalStage wraps Inner, skipping Process entirely when
// Predicate returns false, per the original Rust source's combinator
// of the same purpose (pipeline/combinators.rs "conditional hashing").
type ConditionalStage struct {
	Inner     Stage
	Predicate func(totalSize int64) bool

	enabled bool
}

func (s *ConditionalStage) Initialize(totalSize int64) error {
	s.enabled = s.Predicate == nil || s.Predicate(totalSize)
	if !s.enabled {
		return nil
	}
	return s.Inner.Initialize(totalSize)
}

func (s *ConditionalStage) Process(ctx context.Context, c chunk.Chunk) error {
	if !s.enabled {
		return nil
	}
	return s.Inner.Process(ctx, c)
}

func (s *ConditionalStage) Finalize() error {
	if !s.enabled {
		return nil
	}
	return s.Inner.Finalize()
}

// TransformFunc maps one chunk's bytes to another before they reach
// the wrapped stage (e.g. a checksum-stripping or byte-order filter).
type TransformFunc func(in []byte) []byte

// TransformStage applies Transform to every chunk's bytes before
// forwarding a shallow view to Inner. The original buffer is still
// owned (and released) by the pipeline; TransformStage never retains.
type TransformStage struct {
	Inner     Stage
	Transform TransformFunc
}

func (s *TransformStage) Initialize(totalSize int64) error { return s.Inner.Initialize(totalSize) }

func (s *TransformStage) Process(ctx context.Context, c chunk.Chunk) error {
	out := c.Bytes()
	if s.Transform != nil {
		out = s.Transform(out)
	}
	return s.Inner.Process(ctx, viewChunk(c, out))
}

func (s *TransformStage) Finalize() error { return s.Inner.Finalize() }

// viewChunk builds a chunk carrying replacement bytes but no release
// callback of its own; the caller remains responsible for releasing
// the original chunk c. data may be any length, independent of c's
// backing buffer capacity.
func viewChunk(c chunk.Chunk, data []byte) chunk.Chunk {
	return chunk.New(memory.Wrap(data), c.Seq, c.EOF, nil)
}

// RateLimitedStage throttles Process to Limiter's rate, useful when a
// stage forwards chunks over the network (spec §4.7's send pacing) or
// when simulating slow consumers in tests.
type RateLimitedStage struct {
	Inner   Stage
	Limiter *rate.Limiter
}

func (s *RateLimitedStage) Initialize(totalSize int64) error { return s.Inner.Initialize(totalSize) }

func (s *RateLimitedStage) Process(ctx context.Context, c chunk.Chunk) error {
	if s.Limiter != nil {
		if err := s.Limiter.WaitN(ctx, len(c.Bytes())); err != nil {
			return fmt.Errorf("rate limited stage: %w", err)
		}
	}
	return s.Inner.Process(ctx, c)
}

func (s *RateLimitedStage) Finalize() error { return s.Inner.Finalize() }

// BufferedStage accumulates up to Capacity bytes before flushing them
// to Inner as a single synthetic chunk, trading latency for fewer,
// larger downstream writes (e.g. batching UDP payload assembly).
type BufferedStage struct {
	Inner    Stage
	Capacity int

	buf []byte
	seq uint64
}

func (s *BufferedStage) Initialize(totalSize int64) error {
	if s.Capacity <= 0 {
		s.Capacity = DefaultChunkSize
	}
	s.buf = make([]byte, 0, s.Capacity)
	return s.Inner.Initialize(totalSize)
}

func (s *BufferedStage) Process(ctx context.Context, c chunk.Chunk) error {
	s.buf = append(s.buf, c.Bytes()...)
	for len(s.buf) >= s.Capacity {
		if err := s.flush(ctx, s.buf[:s.Capacity], false); err != nil {
			return err
		}
		s.buf = append(s.buf[:0], s.buf[s.Capacity:]...)
	}
	if c.EOF && len(s.buf) > 0 {
		return s.flush(ctx, s.buf, true)
	}
	return nil
}

func (s *BufferedStage) flush(ctx context.Context, data []byte, eof bool) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	c := chunk.New(memory.Wrap(cp), s.seq, eof, nil)
	s.seq++
	return s.Inner.Process(ctx, c)
}

func (s *BufferedStage) Finalize() error { return s.Inner.Finalize() }

// ParallelStage runs each of its Stages concurrently,
// broadcasting every chunk to each via chunk.Retain, and waits for all
// to finalize. Intended for running several unrelated stages (e.g. a
// hashing stage and a progress-reporting stage) over one read pass.
type ParallelStage struct {
	Stages []Stage
}

func (s *ParallelStage) Initialize(totalSize int64) error {
	for _, st := range s.Stages {
		if err := st.Initialize(totalSize); err != nil {
			return err
		}
	}
	return nil
}

func (s *ParallelStage) Process(ctx context.Context, c chunk.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range s.Stages {
		st := st
		g.Go(func() error {
			rc := c.Retain()
			err := st.Process(gctx, rc)
			rc.Release()
			return err
		})
	}
	return g.Wait()
}

func (s *ParallelStage) Finalize() error {
	var first error
	for _, st := range s.Stages {
		if err := st.Finalize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
