// Package pipeline composes a chunked file reader with an ordered
// chain of processing stages (spec §4.2). Grounded on the autobrr
// piece-hasher reference file (pooled chunk buffers, worker fan-out,
// atomic progress counters) and on the original Rust source's
// pipeline/hashing.rs and pipeline/combinators.rs.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/anidbgo/anidbclient/internal/chunk"
	"github.com/anidbgo/anidbclient/internal/memory"
)

// DefaultChunkSize is the pipeline's default read size (spec §4.2).
const DefaultChunkSize = 64 << 10

// Stage is the lifecycle every pipeline stage implements: initialize
// once with the total size (if known), process each chunk in order,
// finalize once.
type Stage interface {
	Initialize(totalSize int64) error
	Process(ctx context.Context, c chunk.Chunk) error
	Finalize() error
}

// Result is returned by ProcessFile/ProcessBytes (spec §4.2).
type Result struct {
	BytesProcessed  int64
	ChunksProcessed int64
	Throughput      float64 // bytes per second
	Duration        time.Duration
}

// Pipeline reads a file (or in-memory buffer) once in fixed-size
// chunks, driving each Stage's Process call for every chunk in order.
type Pipeline struct {
	mgr       *memory.Manager
	chunkSize int
	stages    []Stage
}

// New builds a pipeline over the given stages, pulling chunk buffers
// from mgr sized at chunkSize (DefaultChunkSize if <= 0).
func New(mgr *memory.Manager, chunkSize int, stages ...Stage) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pipeline{mgr: mgr, chunkSize: chunkSize, stages: stages}
}

// ProcessFile opens path, initializes every stage with its size, reads
// it sequentially in chunkSize spans, and finalizes every stage that
// was successfully initialized — even if a later stage errors, per
// spec §4.2's failure semantics.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: stat %s: %w", path, err)
	}
	return p.run(ctx, f, info.Size())
}

// ProcessBytes runs the pipeline over an in-memory buffer.
func (p *Pipeline) ProcessBytes(ctx context.Context, data []byte) (Result, error) {
	return p.run(ctx, newByteReader(data), int64(len(data)))
}

func (p *Pipeline) run(ctx context.Context, r io.Reader, totalSize int64) (Result, error) {
	start := time.Now()

	initialized := 0
	for _, s := range p.stages {
		if err := s.Initialize(totalSize); err != nil {
			finalizeStages(p.stages[:initialized])
			return Result{}, fmt.Errorf("pipeline: initialize: %w", err)
		}
		initialized++
	}

	var (
		seq     uint64
		read    int64
		chunks  int64
		readErr error
	)
	for {
		buf, allocErr := p.mgr.Allocate(p.chunkSize)
		if allocErr != nil {
			readErr = fmt.Errorf("pipeline: allocate chunk buffer: %w", allocErr)
			break
		}
		n, err := io.ReadFull(r, buf.Bytes())
		eof := false
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			eof = true
			err = nil
		}
		if err != nil {
			p.mgr.Release(buf)
			readErr = fmt.Errorf("pipeline: read: %w", err)
			break
		}
		if n == 0 && eof {
			p.mgr.Release(buf)
			break
		}

		c := chunk.NewShared(p.mgr, trim(buf, n), seq, eof)
		seq++
		read += int64(n)
		chunks++

		if err := p.processStages(ctx, c); err != nil {
			readErr = err
			c.Release()
			break
		}
		c.Release()

		if eof {
			break
		}
	}

	finalizeStages(p.stages[:initialized])

	if readErr != nil {
		return Result{}, readErr
	}

	dur := time.Since(start)
	res := Result{BytesProcessed: read, ChunksProcessed: chunks, Duration: dur}
	if secs := dur.Seconds(); secs > 0 {
		res.Throughput = float64(read) / secs
	}
	return res, nil
}

func (p *Pipeline) processStages(ctx context.Context, c chunk.Chunk) error {
	for _, s := range p.stages {
		if err := s.Process(ctx, c); err != nil {
			return fmt.Errorf("pipeline: stage process: %w", err)
		}
	}
	return nil
}

// finalizeStages calls Finalize on every successfully initialized
// stage, collecting no error from already-failed stages — per spec
// §4.2, finalize still runs to release resources.
func finalizeStages(stages []Stage) {
	for _, s := range stages {
		_ = s.Finalize()
	}
}

// trim returns buf with its logical length capped at n (a short final
// read leaves extra capacity we must not hash).
func trim(buf *memory.Buffer, n int) *memory.Buffer {
	if n == buf.Len() {
		return buf
	}
	return buf.Sub(n)
}
