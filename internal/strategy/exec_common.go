package strategy

import (
	"context"
	"fmt"

	"github.com/anidbgo/anidbclient/internal/chunk"
	"github.com/anidbgo/anidbclient/internal/hash"
	"github.com/anidbgo/anidbclient/internal/memory"
	pl "github.com/anidbgo/anidbclient/internal/pipeline"
)

// progressStage reports cumulative bytes processed to a ProgressSink
// without altering what flows to the hashing stage.
type progressStage struct {
	sink  ProgressSink
	total int64
	seen  int64
}

func (p *progressStage) Initialize(totalSize int64) error {
	p.total = totalSize
	return nil
}

func (p *progressStage) Process(_ context.Context, c chunk.Chunk) error {
	p.seen += int64(len(c.Bytes()))
	p.sink.OnProgress(p.seen, p.total)
	return nil
}

func (p *progressStage) Finalize() error { return nil }

// runSingleThreaded drives a chunked one-pass hash over fctx.FilePath
// with the hashing stage updating every algorithm inline (used by both
// Sequential and Multiple: spec §4.4.1/§4.4.2 differ only in when
// they're selected, not in how they execute).
func runSingleThreaded(ctx context.Context, fctx FileContext, progress ProgressSink, chunkSize int) (Result, error) {
	mgr := memory.New(memory.DefaultConfig())
	hashStage := &pl.HashingStage{Hashes: fctx.Algorithms, Config: fctx.Config}
	prog := &progressStage{sink: buildProgress(progress)}
	p := pl.New(mgr, chunkSize, prog, hashStage)

	res, err := p.ProcessFile(ctx, fctx.FilePath)
	if err != nil {
		return Result{}, fmt.Errorf("strategy: %w", err)
	}
	return Result{
		Digests: hashStage.Results(),
		Metrics: Metrics{BytesProcessed: res.BytesProcessed, Duration: res.Duration, Throughput: res.Throughput},
	}, nil
}

// runBroadcast drives the same one-pass read but with the hashing
// stage fanning each chunk out to one goroutine per algorithm (spec
// §4.4.3), used by Parallel.
func runBroadcast(ctx context.Context, fctx FileContext, progress ProgressSink, chunkSize int) (Result, error) {
	mgr := memory.New(memory.DefaultConfig())
	hashStage := &pl.HashingStage{Hashes: fctx.Algorithms, Config: fctx.Config, Parallel: true}
	prog := &progressStage{sink: buildProgress(progress)}
	p := pl.New(mgr, chunkSize, prog, hashStage)

	res, err := p.ProcessFile(ctx, fctx.FilePath)
	if err != nil {
		return Result{}, fmt.Errorf("strategy: %w", err)
	}
	return Result{
		Digests: hashStage.Results(),
		Metrics: Metrics{BytesProcessed: res.BytesProcessed, Duration: res.Duration, Throughput: res.Throughput},
	}, nil
}

// chunkSizeFor picks the pipeline's read span: ED2K's chunk boundary
// when requested (so its internal buffering never splits a logical
// chunk pointlessly across many small reads), otherwise the pipeline
// default (spec §4.4.4's "ED2K dictates the slot size when present").
func chunkSizeFor(algorithms hash.Set) int {
	if algorithms.Contains(hash.TypeED2K) {
		return hash.ED2KChunkSize
	}
	return pl.DefaultChunkSize
}
