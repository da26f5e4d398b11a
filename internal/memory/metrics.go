package memory

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus collectors for one Manager instance.
// Collectors are created per-Manager (not package-level globals) so
// that test-isolated managers (spec §9) don't collide on registration;
// callers that want process-wide visibility register Collectors() with
// their own registry.
type metrics struct {
	allocatedBytes prometheus.Counter
	releasedBytes  prometheus.Counter
	poolHits       *prometheus.CounterVec
	poolMisses     *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		allocatedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anidb_memory_allocated_bytes_total",
			Help: "Total bytes freshly allocated by the memory manager (excludes pool reuse).",
		}),
		releasedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anidb_memory_released_bytes_total",
			Help: "Total bytes dropped (not retained in a pool) on release.",
		}),
		poolHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anidb_memory_pool_hits_total",
			Help: "Allocations satisfied from a class pool, by class.",
		}, []string{"class"}),
		poolMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anidb_memory_pool_misses_total",
			Help: "Allocations that required a fresh buffer, by class.",
		}, []string{"class"}),
	}
}

func (m *metrics) allocated(n int)  { m.allocatedBytes.Add(float64(n)) }
func (m *metrics) released(n int)   { m.releasedBytes.Add(float64(n)) }
func (m *metrics) poolHit(c Class)  { m.poolHits.WithLabelValues(c.String()).Inc() }
func (m *metrics) poolMiss(c Class) { m.poolMisses.WithLabelValues(c.String()).Inc() }

// Collectors returns the manager's Prometheus collectors for
// registration with a *prometheus.Registry.
func (m *Manager) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.metrics.allocatedBytes,
		m.metrics.releasedBytes,
		m.metrics.poolHits,
		m.metrics.poolMisses,
	}
}
