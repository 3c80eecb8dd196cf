package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes per-namespace engine counters and gauges as Prometheus
// metrics. Optional; an engine without metrics records statistics only.
type Metrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	sets      *prometheus.CounterVec
	deletes   *prometheus.CounterVec
	evictions *prometheus.CounterVec

	entries   *prometheus.GaugeVec
	sizeBytes *prometheus.GaugeVec

	opDuration *prometheus.HistogramVec

	mu            sync.Mutex
	lastEvictions map[string]uint64
}

// NewMetrics creates and registers the engine's metrics with the given
// registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratacache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}, []string{"namespace"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratacache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		}, []string{"namespace"}),
		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratacache",
			Name:      "sets_total",
			Help:      "Total number of cache set operations",
		}, []string{"namespace"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratacache",
			Name:      "deletes_total",
			Help:      "Total number of cache delete operations",
		}, []string{"namespace"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratacache",
			Name:      "evictions_total",
			Help:      "Total number of cache evictions",
		}, []string{"namespace"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stratacache",
			Name:      "entries",
			Help:      "Current number of live entries",
		}, []string{"namespace"}),
		sizeBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stratacache",
			Name:      "size_bytes",
			Help:      "Current live entry bytes",
		}, []string{"namespace"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stratacache",
			Name:      "op_duration_seconds",
			Help:      "Cache operation latency",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"namespace", "op"}),
		lastEvictions: make(map[string]uint64),
	}

	if registerer != nil {
		registerer.MustRegister(m.hits, m.misses, m.sets, m.deletes, m.evictions,
			m.entries, m.sizeBytes, m.opDuration)
	}
	return m
}

func (m *Metrics) recordHit(namespace string) {
	if m != nil {
		m.hits.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) recordMiss(namespace string) {
	if m != nil {
		m.misses.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) recordSet(namespace string) {
	if m != nil {
		m.sets.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) recordDelete(namespace string) {
	if m != nil {
		m.deletes.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) observeOp(namespace, op string, seconds float64) {
	if m != nil {
		m.opDuration.WithLabelValues(namespace, op).Observe(seconds)
	}
}

// updateFromSnapshot refreshes the gauges and reconciles the eviction
// counter from a namespace snapshot. Evictions happen inside the store, so
// the Prometheus counter is advanced by the delta since the last refresh.
func (m *Metrics) updateFromSnapshot(snap Snapshot) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(snap.Namespace).Set(float64(snap.EntryCount))
	m.sizeBytes.WithLabelValues(snap.Namespace).Set(float64(snap.TotalSizeBytes))

	m.mu.Lock()
	last := m.lastEvictions[snap.Namespace]
	if snap.Evictions > last {
		m.evictions.WithLabelValues(snap.Namespace).Add(float64(snap.Evictions - last))
		m.lastEvictions[snap.Namespace] = snap.Evictions
	}
	m.mu.Unlock()
}
