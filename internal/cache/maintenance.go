package cache

import (
	"context"
	"runtime"
	"sync"
	"time"

	"stratacache/internal/cluster"
	"stratacache/internal/logging"
)

// Default maintenance intervals.
const (
	DefaultSweepInterval    = 60 * time.Second
	DefaultStatsInterval    = 10 * time.Second
	DefaultPressureInterval = 30 * time.Second
	DefaultReplicaInterval  = 5 * time.Second

	// DefaultPressureThreshold triggers a global eviction pass when heap
	// used/total exceeds it.
	DefaultPressureThreshold = 0.80
)

// SchedulerConfig tunes the periodic maintenance tasks.
type SchedulerConfig struct {
	SweepInterval     time.Duration
	StatsInterval     time.Duration
	PressureInterval  time.Duration
	ReplicaInterval   time.Duration
	PressureThreshold float64
}

// DefaultSchedulerConfig returns the standard intervals.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SweepInterval:     DefaultSweepInterval,
		StatsInterval:     DefaultStatsInterval,
		PressureInterval:  DefaultPressureInterval,
		ReplicaInterval:   DefaultReplicaInterval,
		PressureThreshold: DefaultPressureThreshold,
	}
}

// Scheduler runs the engine's periodic sweeps: expired-entry cleanup,
// statistics aggregation, memory-pressure eviction and replica sync. Each
// task runs in its own goroutine and is safe against live traffic.
type Scheduler struct {
	engine   *Engine
	registry *cluster.Registry
	config   SchedulerConfig

	// injectable for tests
	heapUsage func() float64

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewScheduler creates a maintenance scheduler for the engine. The registry
// is optional; when present its node liveness is swept alongside the cache.
func NewScheduler(engine *Engine, registry *cluster.Registry, config SchedulerConfig) *Scheduler {
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = DefaultStatsInterval
	}
	if config.PressureInterval <= 0 {
		config.PressureInterval = DefaultPressureInterval
	}
	if config.ReplicaInterval <= 0 {
		config.ReplicaInterval = DefaultReplicaInterval
	}
	if config.PressureThreshold <= 0 || config.PressureThreshold > 1 {
		config.PressureThreshold = DefaultPressureThreshold
	}

	return &Scheduler{
		engine:    engine,
		registry:  registry,
		config:    config,
		heapUsage: heapUsageRatio,
		stop:      make(chan struct{}),
	}
}

// Start launches the maintenance goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	s.runTask(ctx, s.config.SweepInterval, s.sweepExpired)
	s.runTask(ctx, s.config.StatsInterval, s.aggregateStats)
	s.runTask(ctx, s.config.PressureInterval, s.checkMemoryPressure)
	s.runTask(ctx, s.config.ReplicaInterval, s.syncReplicas)

	logging.Info(ctx, logging.ComponentMaintenance, logging.ActionStart, "Maintenance scheduler started", map[string]interface{}{
		"sweep_interval":    s.config.SweepInterval.String(),
		"stats_interval":    s.config.StatsInterval.String(),
		"pressure_interval": s.config.PressureInterval.String(),
		"replica_interval":  s.config.ReplicaInterval.String(),
	})
}

// Stop halts all maintenance tasks and waits for them to exit.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) runTask(ctx context.Context, interval time.Duration, task func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				task(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// sweepExpired removes entries past their TTL in every namespace, prunes
// stale stampede locks, and sweeps node liveness.
func (s *Scheduler) sweepExpired(ctx context.Context) {
	now := time.Now()
	removed := s.engine.SweepExpired(now)
	pruned := s.engine.PruneLocks(now)
	if s.registry != nil {
		s.registry.SweepLiveness(now)
	}
	if removed > 0 || pruned > 0 {
		logging.Debug(ctx, logging.ComponentMaintenance, logging.ActionSweep, "TTL sweep complete", map[string]interface{}{
			"entries_removed": removed,
			"locks_pruned":    pruned,
		})
	}
}

func (s *Scheduler) aggregateStats(ctx context.Context) {
	s.engine.AggregateStats()
}

// checkMemoryPressure is the global safety valve: above the heap threshold
// it runs one eviction pass on every namespace, over limit or not.
func (s *Scheduler) checkMemoryPressure(ctx context.Context) {
	usage := s.heapUsage()
	if usage < s.config.PressureThreshold {
		return
	}
	evicted := s.engine.EvictAll()
	logging.Warn(ctx, logging.ComponentMaintenance, logging.ActionEvict, "Memory pressure eviction", map[string]interface{}{
		"heap_usage": usage,
		"evicted":    evicted,
	})
}

func (s *Scheduler) syncReplicas(ctx context.Context) {
	if err := s.engine.SyncReplicas(ctx); err != nil {
		logging.Warn(ctx, logging.ComponentMaintenance, logging.ActionReplicate, "Replica sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// heapUsageRatio reports process heap used over total.
func heapUsageRatio() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapSys == 0 {
		return 0
	}
	return float64(stats.HeapAlloc) / float64(stats.HeapSys)
}
