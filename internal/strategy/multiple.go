package strategy

import (
	"context"

	"github.com/anidbgo/anidbclient/internal/memory"
)

// Multiple is selected for several algorithms on small-to-medium files
// (spec §4.4.2): one reader, all hashers updated on each chunk in a
// single goroutine.
type Multiple struct{}

func (Multiple) Name() string { return "multiple" }

func (Multiple) MemoryRequirements(fileSize int64) MemoryRequirements {
	chunk := uint64(memory.MediumSize)
	return MemoryRequirements{Minimum: chunk, Optimal: chunk * 2, Maximum: chunk * 3}
}

func (Multiple) IsSuitable(fctx FileContext) bool {
	return fctx.Algorithms.Count() > 1 && fctx.FileSize <= MediumFileThreshold
}

func (Multiple) PriorityScore(fctx FileContext) uint32 {
	return 60
}

func (Multiple) Execute(ctx context.Context, fctx FileContext, progress ProgressSink) (Result, error) {
	return runSingleThreaded(ctx, fctx, progress, chunkSizeFor(fctx.Algorithms))
}
