package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatisticsCounters(t *testing.T) {
	stats := NewStatistics()

	stats.Hit()
	stats.Hit()
	stats.Miss()
	stats.Set()
	stats.Delete()
	stats.Eviction(3)
	stats.AddSize(100)
	stats.AddEntries(2)

	assert.Equal(t, uint64(2), stats.Hits())
	assert.Equal(t, uint64(1), stats.Misses())
	assert.Equal(t, uint64(3), stats.Evictions())
	assert.Equal(t, int64(100), stats.TotalSizeBytes())
	assert.Equal(t, int64(2), stats.EntryCount())
}

func TestStatisticsHitRatio(t *testing.T) {
	stats := NewStatistics()
	assert.Zero(t, stats.HitRatio(), "no traffic means ratio 0")

	stats.Hit()
	stats.Hit()
	stats.Hit()
	stats.Miss()
	assert.InDelta(t, 0.75, stats.HitRatio(), 0.001)
}

func TestStatisticsAggregate(t *testing.T) {
	stats := NewStatistics()

	stats.Aggregate()
	assert.Zero(t, stats.Snapshot("ns").AvgResponseTime)

	stats.Observe(10 * time.Millisecond)
	stats.Observe(30 * time.Millisecond)
	stats.Aggregate()

	assert.Equal(t, 20*time.Millisecond, stats.Snapshot("ns").AvgResponseTime)
}

func TestStatisticsObserveBounded(t *testing.T) {
	stats := NewStatistics()
	for i := 0; i < responseTimeSamples*2; i++ {
		stats.Observe(time.Millisecond)
	}
	stats.Aggregate()
	assert.Equal(t, time.Millisecond, stats.Snapshot("ns").AvgResponseTime)
}

func TestStatisticsSnapshot(t *testing.T) {
	stats := NewStatistics()
	stats.Hit()
	stats.AddSize(42)
	stats.AddEntries(1)

	snap := stats.Snapshot("session")
	assert.Equal(t, "session", snap.Namespace)
	assert.Equal(t, uint64(1), snap.Hits)
	assert.Equal(t, int64(42), snap.TotalSizeBytes)
	assert.Equal(t, int64(1), snap.EntryCount)
	assert.GreaterOrEqual(t, snap.Uptime, time.Duration(0))
}
