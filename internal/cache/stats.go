package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// responseTimeSamples caps the latency ring buffer so statistics never grow
// without bound.
const responseTimeSamples = 1000

// Statistics tracks per-namespace cache performance counters. Counters are
// atomic; the latency ring buffer and aggregated values are mutex-protected.
type Statistics struct {
	hits      uint64
	misses    uint64
	sets      uint64
	deletes   uint64
	evictions uint64

	totalSizeBytes int64
	entryCount     int64

	mu          sync.Mutex
	samples     []time.Duration
	sampleIdx   int
	avgResponse time.Duration
	startTime   time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		samples:   make([]time.Duration, 0, responseTimeSamples),
		startTime: time.Now(),
	}
}

// Hit records a cache hit.
func (s *Statistics) Hit() { atomic.AddUint64(&s.hits, 1) }

// Miss records a cache miss.
func (s *Statistics) Miss() { atomic.AddUint64(&s.misses, 1) }

// Set records a set operation.
func (s *Statistics) Set() { atomic.AddUint64(&s.sets, 1) }

// Delete records a delete operation.
func (s *Statistics) Delete() { atomic.AddUint64(&s.deletes, 1) }

// Eviction records n evicted entries.
func (s *Statistics) Eviction(n int) { atomic.AddUint64(&s.evictions, uint64(n)) }

// AddSize adjusts the live byte accounting by delta.
func (s *Statistics) AddSize(delta int64) { atomic.AddInt64(&s.totalSizeBytes, delta) }

// AddEntries adjusts the live entry count by delta.
func (s *Statistics) AddEntries(delta int64) { atomic.AddInt64(&s.entryCount, delta) }

// Observe records an operation latency into the bounded ring buffer.
func (s *Statistics) Observe(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) < responseTimeSamples {
		s.samples = append(s.samples, d)
		return
	}
	s.samples[s.sampleIdx] = d
	s.sampleIdx = (s.sampleIdx + 1) % responseTimeSamples
}

// Aggregate recomputes the rolling average response time from the sample
// buffer. Called periodically by the maintenance scheduler.
func (s *Statistics) Aggregate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		s.avgResponse = 0
		return
	}
	var total time.Duration
	for _, d := range s.samples {
		total += d
	}
	s.avgResponse = total / time.Duration(len(s.samples))
}

// Hits returns the hit counter.
func (s *Statistics) Hits() uint64 { return atomic.LoadUint64(&s.hits) }

// Misses returns the miss counter.
func (s *Statistics) Misses() uint64 { return atomic.LoadUint64(&s.misses) }

// Evictions returns the eviction counter.
func (s *Statistics) Evictions() uint64 { return atomic.LoadUint64(&s.evictions) }

// TotalSizeBytes returns the live byte accounting.
func (s *Statistics) TotalSizeBytes() int64 { return atomic.LoadInt64(&s.totalSizeBytes) }

// EntryCount returns the live entry count.
func (s *Statistics) EntryCount() int64 { return atomic.LoadInt64(&s.entryCount) }

// HitRatio returns hits/(hits+misses), 0 when there has been no traffic.
func (s *Statistics) HitRatio() float64 {
	hits := atomic.LoadUint64(&s.hits)
	misses := atomic.LoadUint64(&s.misses)
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Snapshot is an exported copy of all statistics for a namespace.
type Snapshot struct {
	Namespace       string        `json:"namespace"`
	Hits            uint64        `json:"hits"`
	Misses          uint64        `json:"misses"`
	Sets            uint64        `json:"sets"`
	Deletes         uint64        `json:"deletes"`
	Evictions       uint64        `json:"evictions"`
	HitRatio        float64       `json:"hit_ratio"`
	TotalSizeBytes  int64         `json:"total_size_bytes"`
	EntryCount      int64         `json:"entry_count"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	Uptime          time.Duration `json:"uptime"`
}

// Snapshot returns a point-in-time copy of all statistics.
func (s *Statistics) Snapshot(namespace string) Snapshot {
	s.mu.Lock()
	avg := s.avgResponse
	start := s.startTime
	s.mu.Unlock()

	return Snapshot{
		Namespace:       namespace,
		Hits:            atomic.LoadUint64(&s.hits),
		Misses:          atomic.LoadUint64(&s.misses),
		Sets:            atomic.LoadUint64(&s.sets),
		Deletes:         atomic.LoadUint64(&s.deletes),
		Evictions:       atomic.LoadUint64(&s.evictions),
		HitRatio:        s.HitRatio(),
		TotalSizeBytes:  atomic.LoadInt64(&s.totalSizeBytes),
		EntryCount:      atomic.LoadInt64(&s.entryCount),
		AvgResponseTime: avg,
		Uptime:          time.Since(start),
	}
}
