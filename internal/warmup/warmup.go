// Package warmup pre-populates cache namespaces from configured external
// sources at startup. Sources load concurrently with a bounded fan-out, and
// a failing source is logged and skipped rather than aborting the run.
package warmup

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"stratacache/internal/cache"
	"stratacache/internal/logging"
)

// DefaultMaxConcurrent bounds how many sources load in parallel.
const DefaultMaxConcurrent = 5

// KeyValue is one pre-warmed cache entry.
type KeyValue struct {
	Key   string
	Value interface{}
	TTL   time.Duration // 0 inherits the namespace default
}

// Transform optionally rewrites a loaded pair before insertion.
type Transform func(KeyValue) KeyValue

// Source yields entries for a namespace. Implementations must honor the
// context for cancellation.
type Source interface {
	// Describe identifies the source in logs, e.g. "file:/etc/seed.json".
	Describe() string

	Load(ctx context.Context) ([]KeyValue, error)
}

// Loader drives warmup for an engine.
type Loader struct {
	engine        *cache.Engine
	maxConcurrent int
	sources       map[string][]Source
}

// NewLoader creates a warmup loader. maxConcurrent <= 0 uses the default.
func NewLoader(engine *cache.Engine, maxConcurrent int) *Loader {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Loader{
		engine:        engine,
		maxConcurrent: maxConcurrent,
		sources:       make(map[string][]Source),
	}
}

// AddSource registers a source for a namespace.
func (l *Loader) AddSource(namespace string, source Source) {
	l.sources[namespace] = append(l.sources[namespace], source)
}

// Run warms every namespace whose policy requests it. Entries go through
// the normal set path so eviction and compression rules apply uniformly.
// Always returns nil: individual source failures are logged and skipped.
func (l *Loader) Run(ctx context.Context) error {
	for _, namespace := range l.engine.Namespaces() {
		store, ok := l.engine.Store(namespace)
		if !ok || !store.Policy().WarmupOnStart {
			continue
		}
		sources := l.sources[namespace]
		if len(sources) == 0 {
			continue
		}
		l.warmNamespace(ctx, namespace, sources)
	}
	return nil
}

// warmNamespace loads sources in chunks of maxConcurrent.
func (l *Loader) warmNamespace(ctx context.Context, namespace string, sources []Source) {
	start := time.Now()
	loaded := 0

	for begin := 0; begin < len(sources); begin += l.maxConcurrent {
		end := begin + l.maxConcurrent
		if end > len(sources) {
			end = len(sources)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		counts := make([]int, end-begin)
		for i, source := range sources[begin:end] {
			i, source := i, source
			group.Go(func() error {
				pairs, err := source.Load(groupCtx)
				if err != nil {
					// Skip, never abort the remaining sources.
					logging.Warn(groupCtx, logging.ComponentWarmup, logging.ActionLoad, "Warmup source failed, skipping", map[string]interface{}{
						"namespace": namespace,
						"source":    source.Describe(),
						"error":     err.Error(),
					})
					return nil
				}
				for _, pair := range pairs {
					opts := []cache.SetOption{}
					if pair.TTL > 0 {
						opts = append(opts, cache.WithTTL(pair.TTL))
					}
					if l.engine.Set(groupCtx, namespace, pair.Key, pair.Value, opts...) {
						counts[i]++
					}
				}
				return nil
			})
		}
		_ = group.Wait()
		for _, n := range counts {
			loaded += n
		}
	}

	logging.Timed(ctx, logging.ComponentWarmup, logging.ActionLoad, "Namespace warmup complete", time.Since(start), map[string]interface{}{
		"namespace": namespace,
		"sources":   len(sources),
		"entries":   loaded,
	})
}
