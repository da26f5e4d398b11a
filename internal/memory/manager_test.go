package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(ceiling uint64) Config {
	cfg := DefaultConfig()
	cfg.Ceiling = ceiling
	return cfg
}

func TestAllocateRoundsToClass(t *testing.T) {
	m := New(DefaultConfig())
	buf, err := m.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, 100, buf.Len())
	assert.Equal(t, Small, buf.Class())
	assert.Equal(t, SmallSize, cap(buf.data))
}

func TestAllocateRefusesOverCeiling(t *testing.T) {
	m := New(testConfig(10 << 10)) // 10 KiB ceiling
	_, err := m.Allocate(12 << 10) // 12 KiB request
	require.Error(t, err)
	var limitErr *LimitExceededError
	require.ErrorAs(t, err, &limitErr)

	buf, err := m.Allocate(4 << 10)
	require.NoError(t, err)
	m.Release(buf)

	buf2, err := m.Allocate(4 << 10)
	require.NoError(t, err)
	assert.Equal(t, 4<<10, buf2.Len())
}

func TestSingleAllocationCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingleAllocationCeiling = 1 << 20
	m := New(cfg)
	_, err := m.Allocate(2 << 20)
	require.Error(t, err)
	var tooLarge *SingleAllocationTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestReleaseReturnsToPoolAndReuse(t *testing.T) {
	m := New(DefaultConfig())
	buf, err := m.Allocate(MediumSize)
	require.NoError(t, err)
	before := m.Stats().CurrentBytes
	m.Release(buf)
	assert.Equal(t, before, m.Stats().CurrentBytes, "returning to pool keeps the charge")

	buf2, err := m.Allocate(MediumSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Stats().PoolHits)
	assert.Equal(t, before, m.Stats().CurrentBytes)
	m.Release(buf2)
}

func TestMemoryReturnsToInitialAfterFullRelease(t *testing.T) {
	m := New(DefaultConfig())
	initial := m.Stats().CurrentBytes
	var bufs []*Buffer
	for i := 0; i < 20; i++ {
		b, err := m.Allocate(1024)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		m.Release(b)
	}
	m.ShrinkPools(0)
	assert.Equal(t, initial, m.Stats().CurrentBytes)
}

func TestShrinkPoolsTargetsLargestClassFirst(t *testing.T) {
	m := New(DefaultConfig())
	var bufs []*Buffer
	for i := 0; i < 4; i++ {
		b, err := m.Allocate(XLargeSize)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		m.Release(b)
	}
	before := m.Stats().CurrentBytes
	m.ShrinkPools(0)
	assert.Less(t, m.Stats().CurrentBytes, before)
	assert.Equal(t, 0, m.Diagnostics().PoolSizes[XLarge])
}

func TestEvictStale(t *testing.T) {
	m := New(DefaultConfig())
	b, err := m.Allocate(SmallSize)
	require.NoError(t, err)
	m.Release(b)
	require.Equal(t, 1, m.Diagnostics().PoolSizes[Small])

	m.EvictStale(0) // any positive age is "stale"; a zero age is not
	time.Sleep(time.Millisecond)
	m.EvictStale(0)
	assert.Equal(t, 0, m.Diagnostics().PoolSizes[Small])
}

func TestAutoShrinkOnPressure(t *testing.T) {
	m := New(testConfig(64 << 10)) // 64 KiB ceiling: 16 small buffers fill it, so releases start above 80%
	var bufs []*Buffer
	for i := 0; i < 16; i++ {
		b, err := m.Allocate(SmallSize)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		m.Release(b)
	}
	d := m.Diagnostics()
	assert.LessOrEqual(t, d.UsagePercent, 80.0+1e-9)
}

func TestConcurrentAllocateRelease(t *testing.T) {
	m := New(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b, err := m.Allocate(MediumSize)
				if err != nil {
					continue
				}
				m.Release(b)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, m.Stats().CurrentBytes, uint64(float64(m.Ceiling())*1.2))
}

func TestDiagnosticsWarningCritical(t *testing.T) {
	m := New(testConfig(1 << 20))
	d := m.Diagnostics()
	assert.False(t, d.Warning)
	assert.False(t, d.Critical)
}
