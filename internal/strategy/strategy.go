// Package strategy implements the four hashing execution plans from
// spec §4.4 (Sequential, Multiple, Parallel, Hybrid) behind a common
// contract, plus the weighted-score Selector that picks among them.
// Grounded on the original Rust source's hashing/strategies/*.rs for
// the scoring and fallback-ladder rules, and reuses internal/pipeline
// and internal/ringbuffer for the actual chunked execution.
package strategy

import (
	"context"
	"time"

	"github.com/anidbgo/anidbclient/internal/hash"
)

// Hint biases the selector toward a family of strategies (spec §4.4.5).
type Hint int

const (
	Automatic Hint = iota
	PreferMemoryEfficiency
	PreferSpeed
	PreferSequential
	PreferParallel
)

func (h Hint) String() string {
	switch h {
	case PreferMemoryEfficiency:
		return "prefer_memory_efficiency"
	case PreferSpeed:
		return "prefer_speed"
	case PreferSequential:
		return "prefer_sequential"
	case PreferParallel:
		return "prefer_parallel"
	default:
		return "automatic"
	}
}

// FileContext is the input the selector and every strategy score
// against (spec §4.4: "Context = {file_path, file_size, algorithms,
// config}").
type FileContext struct {
	FilePath   string
	FileSize   int64
	Algorithms hash.Set
	Config     hash.Config
}

// MemoryRequirements describes a strategy's footprint for a given file
// size (spec §4.4 memory_requirements).
type MemoryRequirements struct {
	Minimum uint64
	Optimal uint64
	Maximum uint64
}

// Metrics is returned alongside per-algorithm digests from Execute.
type Metrics struct {
	BytesProcessed int64
	Duration       time.Duration
	Throughput     float64 // bytes per second
}

// Result is the outcome of running a Strategy to completion.
type Result struct {
	Digests map[hash.Type]string
	Metrics Metrics
}

// ProgressSink receives incremental byte counts during Execute.
// Progress rendering itself is an external collaborator (spec §1
// Non-goals); this is the minimal interface a strategy calls into.
type ProgressSink interface {
	OnProgress(bytesDone, totalBytes int64)
}

// NoopProgress discards progress notifications.
type NoopProgress struct{}

func (NoopProgress) OnProgress(int64, int64) {}

// Strategy is the common contract every execution plan satisfies
// (spec §4.4).
type Strategy interface {
	Name() string
	MemoryRequirements(fileSize int64) MemoryRequirements
	IsSuitable(ctx FileContext) bool
	PriorityScore(ctx FileContext) uint32
	Execute(ctx context.Context, fctx FileContext, progress ProgressSink) (Result, error)
}

// Size thresholds used by IsSuitable/scoring across strategies. These
// are judgment calls the distilled spec leaves as magnitudes
// ("small-to-medium", "very large") rather than exact bytes; see
// DESIGN.md's Open Question decisions for the reasoning.
const (
	SmallFileThreshold  = 10 << 20  // 10 MiB
	MediumFileThreshold = 100 << 20 // 100 MiB
)

func buildProgress(p ProgressSink) ProgressSink {
	if p == nil {
		return NoopProgress{}
	}
	return p
}
