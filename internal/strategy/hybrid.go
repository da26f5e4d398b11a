package strategy

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/anidbgo/anidbclient/internal/hash"
	"github.com/anidbgo/anidbclient/internal/memory"
	"github.com/anidbgo/anidbclient/internal/ringbuffer"
	"golang.org/x/sync/errgroup"
)

// Hybrid fills the ring buffer (§4.3) once and gives each algorithm its
// own cursor reading at its own pace (spec §4.4.4). Selected especially
// when ED2K is combined with other algorithms, or for very large
// files, since every consumer shares one set of chunk buffers instead
// of broadcasting a copy per algorithm.
type Hybrid struct{}

func (Hybrid) Name() string { return "hybrid" }

func (Hybrid) MemoryRequirements(fileSize int64) MemoryRequirements {
	chunk := uint64(hash.ED2KChunkSize)
	return MemoryRequirements{
		Minimum: chunk * 2,
		Optimal: chunk * uint64(ringCapacity(2)),
		Maximum: chunk * ringbuffer.DefaultCapacity,
	}
}

func (Hybrid) IsSuitable(fctx FileContext) bool {
	return (fctx.Algorithms.Count() > 1 && fctx.Algorithms.Contains(hash.TypeED2K)) ||
		fctx.FileSize > MediumFileThreshold
}

func (Hybrid) PriorityScore(fctx FileContext) uint32 {
	return 65
}

// ringCapacity returns the ring size for numAlgorithms consumers: the
// default 32, or 16 when only two algorithms are requested, to cap
// memory (spec §4.4.4).
func ringCapacity(numAlgorithms int) int {
	if numAlgorithms == 2 {
		return 16
	}
	return ringbuffer.DefaultCapacity
}

func (Hybrid) Execute(ctx context.Context, fctx FileContext, progress ProgressSink) (Result, error) {
	start := time.Now()
	progress = buildProgress(progress)

	f, err := os.Open(fctx.FilePath)
	if err != nil {
		return Result{}, fmt.Errorf("strategy: hybrid: open %s: %w", fctx.FilePath, err)
	}
	defer f.Close()

	algos := fctx.Algorithms.Array()
	ring := ringbuffer.New(ringCapacity(len(algos)), len(algos))
	mgr := memory.New(memory.DefaultConfig())
	chunkSize := chunkSizeFor(fctx.Algorithms)

	g, gctx := errgroup.WithContext(ctx)

	results := make([]string, len(algos))
	for i, algo := range algos {
		i, algo := i, algo
		g.Go(func() error {
			h, err := hash.NewHasher(algo, fctx.Config)
			if err != nil {
				return fmt.Errorf("strategy: hybrid: %w", err)
			}
			cur := ring.NewCursor()
			for {
				c, ok, err := cur.Next(gctx)
				if err != nil {
					return fmt.Errorf("strategy: hybrid: cursor: %w", err)
				}
				if !ok {
					break
				}
				h.Update(c.Bytes())
				c.Release()
			}
			results[i] = h.Finalize()
			return nil
		})
	}

	g.Go(func() error {
		var total int64
		// slotBufs[i] is the buffer last written to ring slot i. Write
		// returns only once every cursor has released that slot, so the
		// buffer it replaces can go back to mgr.
		slotBufs := make([]*memory.Buffer, ring.Capacity())
		var seq int
		for {
			buf, err := mgr.Allocate(chunkSize)
			if err != nil {
				return fmt.Errorf("strategy: hybrid: allocate: %w", err)
			}
			n, err := io.ReadFull(f, buf.Bytes())
			eof := false
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				eof = true
				err = nil
			}
			if err != nil {
				mgr.Release(buf)
				return fmt.Errorf("strategy: hybrid: read: %w", err)
			}
			if n == 0 {
				mgr.Release(buf)
				ring.MarkComplete()
				return nil
			}

			sized := buf
			if n != buf.Len() {
				sized = buf.Sub(n)
			}
			total += int64(n)
			if werr := ring.Write(gctx, sized, n, eof); werr != nil {
				return fmt.Errorf("strategy: hybrid: write: %w", werr)
			}
			idx := seq % len(slotBufs)
			if old := slotBufs[idx]; old != nil {
				mgr.Release(old)
			}
			slotBufs[idx] = sized
			seq++
			progress.OnProgress(total, fctx.FileSize)
			if eof {
				ring.MarkComplete()
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	digests := make(map[hash.Type]string, len(algos))
	for i, algo := range algos {
		digests[algo] = results[i]
	}

	dur := time.Since(start)
	var throughput float64
	if secs := dur.Seconds(); secs > 0 {
		throughput = float64(fctx.FileSize) / secs
	}
	return Result{
		Digests: digests,
		Metrics: Metrics{BytesProcessed: fctx.FileSize, Duration: dur, Throughput: throughput},
	}, nil
}
