package memory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCeiling is the default process-wide ceiling, per spec §4.1.
const DefaultCeiling = 500 << 20 // 500 MiB

// DefaultSingleAllocationCeiling rejects pathological single requests
// regardless of current usage, per spec §4.1.
const DefaultSingleAllocationCeiling = 1 << 30 // 1 GiB

// shrinkHighWatermark and shrinkTarget implement the 80%→70% auto-shrink
// policy from spec §4.1.
const (
	shrinkHighWatermark = 0.80
	shrinkTarget        = 0.70
)

// Config configures a Manager. The zero value is not usable; use
// DefaultConfig and override fields as needed.
type Config struct {
	Ceiling                 uint64
	SingleAllocationCeiling uint64
	// PoolCapacity bounds how many buffers each class pool retains.
	PoolCapacity [numClasses]int
	Logger       *logrus.Entry
}

// DefaultConfig returns the spec's default 500 MiB ceiling with modest
// per-class pool capacities, biased toward keeping more small buffers
// than huge ones.
func DefaultConfig() Config {
	return Config{
		Ceiling:                 DefaultCeiling,
		SingleAllocationCeiling: DefaultSingleAllocationCeiling,
		PoolCapacity:            [numClasses]int{Small: 128, Medium: 64, Large: 16, XLarge: 4},
		Logger:                  logrus.WithField("component", "memory"),
	}
}

// Stats is a snapshot of allocator counters, per spec §4.1 stats().
type Stats struct {
	Allocations   uint64
	Deallocations uint64
	PoolHits      uint64
	PoolMisses    uint64
	CurrentBytes  uint64
	PeakBytes     uint64
}

// Diagnostics is a snapshot of ceiling pressure, per spec §4.1 diagnostics().
type Diagnostics struct {
	UsagePercent float64
	Warning      bool // usage >= 80%
	Critical     bool // usage >= 95%
	PoolSizes    [numClasses]int
}

// Manager is the single source of truth for pooled allocations in the
// hashing path. See spec §4.1 and §9 ("the process-wide
// memory manager is a deliberate singleton ... implementations must
// allow test isolation via a per-test manager instance").
type Manager struct {
	cfg   Config
	pools [numClasses]*classPool

	currentBytes atomic.Uint64
	peakBytes    atomic.Uint64

	allocations   atomic.Uint64
	deallocations atomic.Uint64
	poolHits      atomic.Uint64
	poolMisses    atomic.Uint64

	shrinkMu sync.Mutex
	metrics  *metrics
}

// New builds a Manager with the given configuration. Use DefaultConfig()
// for the process-wide ceiling, or a smaller custom Config per test.
func New(cfg Config) *Manager {
	m := &Manager{cfg: cfg}
	for c := 0; c < numClasses; c++ {
		max := cfg.PoolCapacity[c]
		if max == 0 {
			max = 1
		}
		m.pools[c] = newClassPool(Class(c), max)
	}
	m.metrics = newMetrics()
	return m
}

// Allocate returns a buffer sized at least requestedBytes, reused from a
// class pool when possible, or fresh after a ceiling check.
func (m *Manager) Allocate(requestedBytes int) (*Buffer, error) {
	if requestedBytes < 0 {
		requestedBytes = 0
	}
	if uint64(requestedBytes) > m.cfg.SingleAllocationCeiling {
		return nil, &SingleAllocationTooLargeError{
			Ceiling:   m.cfg.SingleAllocationCeiling,
			Requested: uint64(requestedBytes),
		}
	}

	class, fits := classFor(requestedBytes)
	oversized := !fits

	var data []byte
	if !oversized {
		if buf, ok := m.pools[class].get(); ok {
			m.poolHits.Add(1)
			m.metrics.poolHit(class)
			data = buf[:requestedBytes]
			m.allocations.Add(1)
			return &Buffer{data: data, class: class}, nil
		}
		m.poolMisses.Add(1)
		m.metrics.poolMiss(class)
	}

	chargeSize := requestedBytes
	if !oversized {
		chargeSize = class.size()
	}

	for {
		cur := m.currentBytes.Load()
		next := cur + uint64(chargeSize)
		if next > m.cfg.Ceiling {
			return nil, &LimitExceededError{Limit: m.cfg.Ceiling, Requested: uint64(chargeSize)}
		}
		if m.currentBytes.CompareAndSwap(cur, next) {
			m.bumpPeak(next)
			break
		}
	}

	if oversized {
		data = make([]byte, requestedBytes)
	} else {
		data = make([]byte, class.size())[:requestedBytes]
	}
	m.allocations.Add(1)
	m.metrics.allocated(chargeSize)
	return &Buffer{data: data, class: class, oversized: oversized}, nil
}

func (m *Manager) bumpPeak(cur uint64) {
	for {
		peak := m.peakBytes.Load()
		if cur <= peak {
			return
		}
		if m.peakBytes.CompareAndSwap(peak, cur) {
			return
		}
	}
}

// Release returns buf to its class pool if there is room, or drops it
// (freeing its charge against the ceiling). Triggers auto-shrink when
// usage crosses the high watermark.
func (m *Manager) Release(buf *Buffer) {
	if buf == nil || buf.data == nil {
		return
	}
	m.deallocations.Add(1)
	full := buf.data[:0]
	full = full[:cap(full)]

	if !buf.oversized {
		if m.pools[buf.class].put(full) {
			buf.data = nil
			m.maybeAutoShrink()
			return
		}
	}

	// Dropped: not retained, so its charge against the ceiling is freed.
	m.currentBytes.Add(^uint64(buf.capBytes() - 1)) // atomic subtract
	buf.data = nil
	m.metrics.released(buf.capBytes())
	m.maybeAutoShrink()
}

func (m *Manager) maybeAutoShrink() {
	cur := m.currentBytes.Load()
	if float64(cur) < float64(m.cfg.Ceiling)*shrinkHighWatermark {
		return
	}
	target := uint64(float64(m.cfg.Ceiling) * shrinkTarget)
	m.ShrinkPools(target)
}

// Stats returns a snapshot of allocator counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Allocations:   m.allocations.Load(),
		Deallocations: m.deallocations.Load(),
		PoolHits:      m.poolHits.Load(),
		PoolMisses:    m.poolMisses.Load(),
		CurrentBytes:  m.currentBytes.Load(),
		PeakBytes:     m.peakBytes.Load(),
	}
}

// Diagnostics returns usage pressure flags and per-class pool sizes.
func (m *Manager) Diagnostics() Diagnostics {
	usage := float64(m.currentBytes.Load()) / float64(m.cfg.Ceiling)
	d := Diagnostics{
		UsagePercent: usage * 100,
		Warning:      usage >= shrinkHighWatermark,
		Critical:     usage >= 0.95,
	}
	for c := 0; c < numClasses; c++ {
		d.PoolSizes[c] = m.pools[c].inPool()
	}
	return d
}

// ShrinkPools releases pooled buffers, largest class first, until usage
// is at or below targetBytes or there is nothing left to release.
func (m *Manager) ShrinkPools(targetBytes uint64) {
	m.shrinkMu.Lock()
	defer m.shrinkMu.Unlock()

	for c := numClasses - 1; c >= 0; c-- {
		if m.currentBytes.Load() <= targetBytes {
			return
		}
		pool := m.pools[c]
		for m.currentBytes.Load() > targetBytes {
			freed := pool.shrinkTo(pool.inPool() - 1)
			if freed == 0 {
				break
			}
			m.currentBytes.Add(^uint64(freed - 1))
		}
	}
	m.cfg.Logger.WithField("current_bytes", m.currentBytes.Load()).Debug("shrank pools")
}

// EvictStale drops pooled buffers that have sat idle longer than maxAge.
func (m *Manager) EvictStale(maxAge time.Duration) {
	for c := 0; c < numClasses; c++ {
		freed := m.pools[c].evictStale(maxAge)
		if freed > 0 {
			m.currentBytes.Add(^uint64(freed - 1))
		}
	}
}

// Ceiling returns the manager's configured ceiling in bytes.
func (m *Manager) Ceiling() uint64 {
	return m.cfg.Ceiling
}
