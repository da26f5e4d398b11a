package strategy

import (
	"context"

	"github.com/anidbgo/anidbclient/internal/memory"
)

// Sequential is selected for a single algorithm or a small file (spec
// §4.4.1): one hasher, one reader, no concurrency.
type Sequential struct{}

func (Sequential) Name() string { return "sequential" }

func (Sequential) MemoryRequirements(fileSize int64) MemoryRequirements {
	chunk := uint64(memory.MediumSize)
	return MemoryRequirements{Minimum: chunk, Optimal: chunk, Maximum: chunk * 2}
}

func (Sequential) IsSuitable(fctx FileContext) bool {
	return fctx.Algorithms.Count() == 1 || fctx.FileSize <= SmallFileThreshold
}

// PriorityScore returns this strategy's base score; the selector layers
// hint bonuses and special-case rules on top (spec §4.4.5 step 3).
func (Sequential) PriorityScore(fctx FileContext) uint32 {
	return 50
}

func (Sequential) Execute(ctx context.Context, fctx FileContext, progress ProgressSink) (Result, error) {
	return runSingleThreaded(ctx, fctx, progress, chunkSizeFor(fctx.Algorithms))
}
