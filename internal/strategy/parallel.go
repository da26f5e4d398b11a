package strategy

import (
	"context"
	"runtime"

	"github.com/anidbgo/anidbclient/internal/memory"
	"github.com/anidbgo/anidbclient/internal/pipeline"
)

// Parallel broadcasts each chunk to one worker goroutine per algorithm
// over a bounded channel (spec §4.4.3), selected for multiple
// algorithms on large files with at least two cores available.
type Parallel struct{}

func (Parallel) Name() string { return "parallel" }

func (Parallel) MemoryRequirements(fileSize int64) MemoryRequirements {
	// depth x chunk_size x num_algorithms, per spec §4.4.3; num_algorithms
	// isn't known from fileSize alone so this reports a representative
	// two-algorithm figure.
	perAlgo := uint64(memory.MediumSize) * 2 // pipeline.chanDepth
	return MemoryRequirements{
		Minimum: perAlgo * 2,
		Optimal: perAlgo * 3,
		Maximum: perAlgo * 4,
	}
}

func (Parallel) IsSuitable(fctx FileContext) bool {
	return fctx.Algorithms.Count() > 1 &&
		fctx.FileSize > MediumFileThreshold &&
		runtime.NumCPU() >= 2
}

func (Parallel) PriorityScore(fctx FileContext) uint32 {
	return 70
}

func (Parallel) Execute(ctx context.Context, fctx FileContext, progress ProgressSink) (Result, error) {
	return runBroadcast(ctx, fctx, progress, pipeline.DefaultChunkSize)
}
