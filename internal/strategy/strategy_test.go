package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anidbgo/anidbclient/internal/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSelectorAutomaticPicksHybridForLargeCombinedED2K(t *testing.T) {
	sel := NewSelector()
	fctx := FileContext{
		FileSize:   1 << 30, // 1 GiB
		Algorithms: hash.NewSet(hash.TypeED2K, hash.TypeMD5, hash.TypeSHA1),
	}
	strat, err := sel.Select(fctx, Automatic)
	require.NoError(t, err)
	assert.Equal(t, "hybrid", strat.Name())
}

func TestSelectorMemoryEfficiencyNeverPicksParallel(t *testing.T) {
	sel := NewSelector()
	fctx := FileContext{
		FileSize:   500 << 20, // 500 MiB
		Algorithms: hash.NewSet(hash.TypeMD5, hash.TypeSHA1),
	}
	strat, err := sel.Select(fctx, PreferMemoryEfficiency)
	require.NoError(t, err)
	assert.NotEqual(t, "parallel", strat.Name())
}

func TestSelectorSingleAlgorithmSmallFilePicksSequential(t *testing.T) {
	sel := NewSelector()
	fctx := FileContext{FileSize: 4096, Algorithms: hash.NewSet(hash.TypeMD5)}
	strat, err := sel.Select(fctx, Automatic)
	require.NoError(t, err)
	assert.Equal(t, "sequential", strat.Name())
}

func TestSelectorTieBreakFavorsEarlierRegistration(t *testing.T) {
	sel := &Selector{strategies: []Strategy{constScore{"a", 10}, constScore{"b", 10}}}
	fctx := FileContext{FileSize: 10, Algorithms: hash.NewSet(hash.TypeMD5)}
	strat, err := sel.Select(fctx, Automatic)
	require.NoError(t, err)
	assert.Equal(t, "a", strat.Name())
}

func TestSelectorFallsBackToHybridWhenNoneSuitable(t *testing.T) {
	sel := &Selector{strategies: []Strategy{unsuitable{"sequential"}, unsuitable{"multiple"}, unsuitable{"parallel"}, unsuitable{"hybrid"}}}
	fctx := FileContext{FileSize: 1 << 30, Algorithms: hash.NewSet(hash.TypeMD5, hash.TypeSHA1)}
	strat, err := sel.Select(fctx, Automatic)
	require.NoError(t, err)
	assert.Equal(t, "hybrid", strat.Name())
}

// constScore is a test double with a fixed score, always suitable.
type constScore struct {
	name  string
	score uint32
}

func (c constScore) Name() string                                 { return c.name }
func (constScore) MemoryRequirements(int64) MemoryRequirements     { return MemoryRequirements{} }
func (constScore) IsSuitable(FileContext) bool                     { return true }
func (c constScore) PriorityScore(FileContext) uint32              { return c.score }
func (constScore) Execute(context.Context, FileContext, ProgressSink) (Result, error) {
	return Result{}, nil
}

// unsuitable is a test double that is never suitable, to exercise the
// fallback ladder.
type unsuitable struct{ name string }

func (u unsuitable) Name() string                              { return u.name }
func (unsuitable) MemoryRequirements(int64) MemoryRequirements  { return MemoryRequirements{} }
func (unsuitable) IsSuitable(FileContext) bool                  { return false }
func (unsuitable) PriorityScore(FileContext) uint32             { return 0 }
func (unsuitable) Execute(context.Context, FileContext, ProgressSink) (Result, error) {
	return Result{}, nil
}

func TestSequentialExecuteProducesDigests(t *testing.T) {
	path := writeTempFile(t, 1000)
	fctx := FileContext{FilePath: path, FileSize: 1000, Algorithms: hash.NewSet(hash.TypeMD5, hash.TypeCRC32)}
	res, err := (Sequential{}).Execute(context.Background(), fctx, nil)
	require.NoError(t, err)
	assert.Len(t, res.Digests, 2)
	assert.Equal(t, int64(1000), res.Metrics.BytesProcessed)
}

func TestHybridExecuteProducesDigestsMatchingSequential(t *testing.T) {
	path := writeTempFile(t, 50000)
	fctx := FileContext{FilePath: path, FileSize: 50000, Algorithms: hash.NewSet(hash.TypeMD5, hash.TypeSHA1)}

	seqRes, err := (Sequential{}).Execute(context.Background(), fctx, nil)
	require.NoError(t, err)

	hybRes, err := (Hybrid{}).Execute(context.Background(), fctx, nil)
	require.NoError(t, err)

	assert.Equal(t, seqRes.Digests, hybRes.Digests)
}

func TestParallelExecuteMatchesSequential(t *testing.T) {
	path := writeTempFile(t, 300000)
	fctx := FileContext{FilePath: path, FileSize: 300000, Algorithms: hash.NewSet(hash.TypeMD5, hash.TypeSHA1, hash.TypeCRC32)}

	seqRes, err := (Sequential{}).Execute(context.Background(), fctx, nil)
	require.NoError(t, err)

	parRes, err := (Parallel{}).Execute(context.Background(), fctx, nil)
	require.NoError(t, err)

	assert.Equal(t, seqRes.Digests, parRes.Digests)
}

func TestHybridRingCapacityHalvedForTwoAlgorithms(t *testing.T) {
	assert.Equal(t, 16, ringCapacity(2))
	assert.Equal(t, 32, ringCapacity(3))
	assert.Equal(t, 32, ringCapacity(1))
}
