// Package cache implements the multi-namespace in-process cache engine:
// per-namespace entry stores with capacity and TTL limits, pluggable
// eviction policies, stampede protection for concurrent recomputation, and
// hooks for replication to remote nodes.
//
// The engine is constructed explicitly with New and passed by reference to
// collaborators; there is no ambient singleton, so tests build isolated
// instances.
package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"stratacache/internal/cluster"
	"stratacache/internal/logging"
	"stratacache/internal/replication"
)

// StampedeMode selects how getOrSet behaves under lock contention.
type StampedeMode string

const (
	// StampedeBestEffort waits one backoff, re-checks the cache, then
	// computes without caching. Favors availability over strict
	// single-flight when contention is high.
	StampedeBestEffort StampedeMode = "best-effort"

	// StampedeStrict coalesces all concurrent callers onto a single
	// factory invocation per key.
	StampedeStrict StampedeMode = "strict"
)

// Engine is the multi-namespace cache. All public operations go through it;
// external collaborators never mutate entries directly.
type Engine struct {
	stores     map[string]*Store
	overrides  map[string]Policy
	compressor Compressor

	locks  *lockTable
	flight singleflight.Group
	mode   StampedeMode

	transport replication.Transport
	registry  *cluster.Registry
	ring      *cluster.Ring

	metrics *Metrics
}

// Option configures the engine at construction time.
type Option func(*Engine)

// WithCompressor overrides the compressor applied above namespace
// thresholds.
func WithCompressor(c Compressor) Option {
	return func(e *Engine) {
		if c != nil {
			e.compressor = c
		}
	}
}

// WithStampedeMode selects strict or best-effort getOrSet semantics.
func WithStampedeMode(mode StampedeMode) Option {
	return func(e *Engine) {
		if mode == StampedeStrict || mode == StampedeBestEffort {
			e.mode = mode
		}
	}
}

// WithTransport installs a replication transport. Defaults to a no-op.
func WithTransport(t replication.Transport) Option {
	return func(e *Engine) {
		if t != nil {
			e.transport = t
		}
	}
}

// WithTopology binds a node registry and hash ring used to pick replica
// targets.
func WithTopology(registry *cluster.Registry, ring *cluster.Ring) Option {
	return func(e *Engine) {
		e.registry = registry
		e.ring = ring
	}
}

// WithMetrics enables Prometheus metrics export.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithNamespace registers an additional namespace beyond the defaults, or
// overrides a default policy.
func WithNamespace(name string, policy Policy) Option {
	return func(e *Engine) {
		e.overrides[name] = policy
	}
}

// New constructs an engine with the pre-registered default namespaces.
// Options may override policies, the compressor, topology and transport.
func New(opts ...Option) *Engine {
	e := &Engine{
		stores:     make(map[string]*Store),
		overrides:  make(map[string]Policy),
		compressor: NewCompressor("gzip"),
		locks:      newLockTable(),
		mode:       StampedeBestEffort,
		transport:  replication.Noop{},
	}

	for _, opt := range opts {
		opt(e)
	}

	policies := DefaultPolicies()
	for name, policy := range e.overrides {
		policies[name] = policy
	}
	for name, policy := range policies {
		e.stores[name] = NewStore(name, policy, e.compressor)
	}

	return e
}

// Namespaces returns the registered namespace names.
func (e *Engine) Namespaces() []string {
	names := make([]string, 0, len(e.stores))
	for name := range e.stores {
		names = append(names, name)
	}
	return names
}

// Store returns the entry store for a namespace.
func (e *Engine) Store(namespace string) (*Store, bool) {
	s, ok := e.stores[namespace]
	return s, ok
}

// setConfig carries per-call options for Set and GetOrSet.
type setConfig struct {
	SetOptions
	lockTimeout time.Duration
}

// SetOption customizes a single Set or GetOrSet call.
type SetOption func(*setConfig)

// WithTTL overrides the namespace default TTL for this entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(c *setConfig) { c.TTL = ttl }
}

// WithTags attaches tags for group invalidation.
func WithTags(tags ...string) SetOption {
	return func(c *setConfig) { c.Tags = tags }
}

// WithPriority sets the entry's eviction priority.
func WithPriority(p Priority) SetOption {
	return func(c *setConfig) { c.Priority = p }
}

// WithLockTimeout overrides the stampede lock timeout for GetOrSet.
func WithLockTimeout(timeout time.Duration) SetOption {
	return func(c *setConfig) { c.lockTimeout = timeout }
}

func applySetOptions(opts []SetOption) setConfig {
	cfg := setConfig{
		SetOptions:  SetOptions{Priority: PriorityNormal},
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Get retrieves a value from a namespace. A miss is a nil value with ok
// false, never an error.
func (e *Engine) Get(ctx context.Context, namespace, key string) (interface{}, bool) {
	start := time.Now()
	store, ok := e.stores[namespace]
	if !ok {
		logging.Warn(ctx, logging.ComponentEngine, logging.ActionGet, "Unknown namespace", map[string]interface{}{
			"namespace": namespace,
		})
		return nil, false
	}

	value, hit := store.Get(key)
	elapsed := time.Since(start)
	store.Stats().Observe(elapsed)
	e.metrics.observeOp(namespace, "get", elapsed.Seconds())
	if hit {
		e.metrics.recordHit(namespace)
	} else {
		e.metrics.recordMiss(namespace)
	}
	return value, hit
}

// Set stores a value in a namespace. Returns false when the namespace is
// unknown or the value cannot be serialized; the cache never propagates
// these as errors to the caller.
func (e *Engine) Set(ctx context.Context, namespace, key string, value interface{}, opts ...SetOption) bool {
	start := time.Now()
	store, ok := e.stores[namespace]
	if !ok {
		logging.Warn(ctx, logging.ComponentEngine, logging.ActionSet, "Unknown namespace", map[string]interface{}{
			"namespace": namespace,
		})
		return false
	}

	cfg := applySetOptions(opts)
	if _, err := store.Set(key, value, cfg.SetOptions); err != nil {
		logging.Error(ctx, logging.ComponentStore, logging.ActionSet, "Set failed", err, map[string]interface{}{
			"namespace": namespace,
			"key":       key,
		})
		return false
	}

	elapsed := time.Since(start)
	store.Stats().Observe(elapsed)
	e.metrics.recordSet(namespace)
	e.metrics.observeOp(namespace, "set", elapsed.Seconds())

	e.replicate(ctx, store, replication.OpSet, key, value, cfg.TTL)
	return true
}

// Delete removes an entry and reports whether one existed.
func (e *Engine) Delete(ctx context.Context, namespace, key string) bool {
	store, ok := e.stores[namespace]
	if !ok {
		return false
	}

	removed := store.Delete(key)
	if removed {
		e.metrics.recordDelete(namespace)
		e.replicate(ctx, store, replication.OpDelete, key, nil, 0)
	}
	return removed
}

// MGet fetches several keys at once. The result maps every requested key to
// its value, or nil on a miss.
func (e *Engine) MGet(ctx context.Context, namespace string, keys []string) map[string]interface{} {
	result := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		if value, ok := e.Get(ctx, namespace, key); ok {
			result[key] = value
		} else {
			result[key] = nil
		}
	}
	return result
}

// Item is one entry of an MSet batch.
type Item struct {
	Key   string
	Value interface{}
	TTL   time.Duration // 0 inherits the namespace default
}

// MSet stores several entries and reports per-key success.
func (e *Engine) MSet(ctx context.Context, namespace string, items []Item) map[string]bool {
	result := make(map[string]bool, len(items))
	for _, item := range items {
		opts := []SetOption{}
		if item.TTL > 0 {
			opts = append(opts, WithTTL(item.TTL))
		}
		result[item.Key] = e.Set(ctx, namespace, item.Key, item.Value, opts...)
	}
	return result
}

// Factory computes a value on a cache miss during GetOrSet.
type Factory func(ctx context.Context) (interface{}, error)

// GetOrSet returns the cached value for key, or computes it with factory,
// caching the result. At most one factory invocation per key is in flight
// at a time, except in best-effort mode's documented contention fallback.
// A factory error propagates to the caller after the lock is released; it
// is a caller failure, not a cache failure.
func (e *Engine) GetOrSet(ctx context.Context, namespace, key string, factory Factory, opts ...SetOption) (interface{}, error) {
	if factory == nil {
		return nil, fmt.Errorf("getOrSet %s:%s: factory is required", namespace, key)
	}

	// Fast path, no locking overhead on a hit.
	if value, ok := e.Get(ctx, namespace, key); ok {
		return value, nil
	}

	if e.mode == StampedeStrict {
		return e.getOrSetStrict(ctx, namespace, key, factory, opts)
	}
	return e.getOrSetBestEffort(ctx, namespace, key, factory, opts)
}

func (e *Engine) getOrSetStrict(ctx context.Context, namespace, key string, factory Factory, opts []SetOption) (interface{}, error) {
	value, err, _ := e.flight.Do(namespace+":"+key, func() (interface{}, error) {
		if value, ok := e.Get(ctx, namespace, key); ok {
			return value, nil
		}
		value, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		e.Set(ctx, namespace, key, value, opts...)
		return value, nil
	})
	return value, err
}

func (e *Engine) getOrSetBestEffort(ctx context.Context, namespace, key string, factory Factory, opts []SetOption) (interface{}, error) {
	cfg := applySetOptions(opts)
	lockKey := namespace + ":" + key

	if !e.locks.TryAcquire(lockKey, cfg.lockTimeout) {
		// Another caller owns the recomputation. Back off once, re-check,
		// then degrade to an uncached compute rather than block.
		select {
		case <-time.After(lockBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if value, ok := e.Get(ctx, namespace, key); ok {
			return value, nil
		}
		logging.Debug(ctx, logging.ComponentStampede, logging.ActionGet, "Lock contention fallback, computing uncached", map[string]interface{}{
			"namespace": namespace,
			"key":       key,
		})
		return factory(ctx)
	}
	defer e.locks.Release(lockKey)

	// Double-check: the value may have landed while acquiring.
	if value, ok := e.Get(ctx, namespace, key); ok {
		return value, nil
	}

	value, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	e.Set(ctx, namespace, key, value, opts...)
	return value, nil
}

// Invalidate removes entries matching pattern from the named namespaces, or
// from every namespace when none are given. Returns the count removed.
func (e *Engine) Invalidate(ctx context.Context, pattern string, namespaces ...string) int {
	removed := 0
	for _, store := range e.targetStores(namespaces) {
		removed += store.InvalidatePattern(pattern)
	}
	if removed > 0 {
		logging.Info(ctx, logging.ComponentEngine, logging.ActionDelete, "Invalidated entries by pattern", map[string]interface{}{
			"pattern": pattern,
			"removed": removed,
		})
	}
	return removed
}

// InvalidateByTags removes entries whose tags intersect the given list.
func (e *Engine) InvalidateByTags(ctx context.Context, tags []string, namespaces ...string) int {
	removed := 0
	for _, store := range e.targetStores(namespaces) {
		removed += store.InvalidateTags(tags)
	}
	if removed > 0 {
		logging.Info(ctx, logging.ComponentEngine, logging.ActionDelete, "Invalidated entries by tags", map[string]interface{}{
			"tags":    tags,
			"removed": removed,
		})
	}
	return removed
}

// Stats returns the statistics snapshot for one namespace.
func (e *Engine) Stats(namespace string) (Snapshot, bool) {
	store, ok := e.stores[namespace]
	if !ok {
		return Snapshot{}, false
	}
	return store.Snapshot(), true
}

// AllStats returns snapshots for every namespace.
func (e *Engine) AllStats() map[string]Snapshot {
	out := make(map[string]Snapshot, len(e.stores))
	for name, store := range e.stores {
		out[name] = store.Snapshot()
	}
	return out
}

// Nodes returns the known replication topology, keyed by node ID. Empty in
// a single-node deployment.
func (e *Engine) Nodes() map[string]cluster.Node {
	if e.registry == nil {
		return map[string]cluster.Node{}
	}
	return e.registry.Nodes()
}

// Flush clears the named namespaces, or all of them when none are given.
func (e *Engine) Flush(ctx context.Context, namespaces ...string) {
	for _, store := range e.targetStores(namespaces) {
		removed := store.Flush()
		logging.Info(ctx, logging.ComponentEngine, "flush", "Flushed namespace", map[string]interface{}{
			"namespace": store.Name(),
			"removed":   removed,
		})
	}
}

// Close releases the engine's external resources.
func (e *Engine) Close() error {
	return e.transport.Close()
}

// SweepExpired runs a TTL sweep across every namespace, returning the total
// removed. Exposed for the maintenance scheduler.
func (e *Engine) SweepExpired(now time.Time) int {
	removed := 0
	for _, store := range e.stores {
		removed += store.SweepExpired(now)
	}
	return removed
}

// EvictAll runs one eviction pass on every namespace regardless of
// occupancy; the memory-pressure safety valve.
func (e *Engine) EvictAll() int {
	evicted := 0
	for _, store := range e.stores {
		evicted += store.EvictBatch()
	}
	return evicted
}

// AggregateStats recomputes derived statistics and refreshes metrics
// gauges.
func (e *Engine) AggregateStats() {
	for _, store := range e.stores {
		store.Stats().Aggregate()
		e.metrics.updateFromSnapshot(store.Snapshot())
	}
}

// PruneLocks drops expired stampede lock records.
func (e *Engine) PruneLocks(now time.Time) int {
	return e.locks.Prune(now)
}

// SyncReplicas invokes the transport's flush hook. A no-op transport makes
// this free in single-node deployments.
func (e *Engine) SyncReplicas(ctx context.Context) error {
	return e.transport.Sync(ctx)
}

func (e *Engine) targetStores(namespaces []string) []*Store {
	if len(namespaces) == 0 {
		stores := make([]*Store, 0, len(e.stores))
		for _, store := range e.stores {
			stores = append(stores, store)
		}
		return stores
	}
	stores := make([]*Store, 0, len(namespaces))
	for _, name := range namespaces {
		if store, ok := e.stores[name]; ok {
			stores = append(stores, store)
		}
	}
	return stores
}

// replicate pushes a write to the transport when the namespace calls for
// replication. Failures are logged, never surfaced: local state is the
// source of truth.
func (e *Engine) replicate(ctx context.Context, store *Store, op replication.Op, key string, value interface{}, ttl time.Duration) {
	factor := store.Policy().ReplicationFactor
	if factor <= 0 {
		return
	}

	event := replication.Event{
		Op:        op,
		Namespace: store.Name(),
		Key:       key,
		Timestamp: time.Now(),
	}
	if ttl > 0 {
		event.TTL = int64(ttl.Seconds())
	}
	if op == replication.OpSet {
		payload, _, err := serializeValue(value)
		if err != nil {
			logging.Warn(ctx, logging.ComponentReplication, logging.ActionReplicate, "Skipping replication of unserializable value", map[string]interface{}{
				"namespace": store.Name(),
				"key":       key,
			})
			return
		}
		event.Value = payload
	}
	if e.ring != nil {
		event.Targets = e.ring.ReplicasFor(store.Name()+":"+key, factor)
	}

	if err := e.transport.Replicate(ctx, event); err != nil {
		logging.Warn(ctx, logging.ComponentReplication, logging.ActionReplicate, "Replication failed, local state authoritative", map[string]interface{}{
			"namespace": store.Name(),
			"key":       key,
			"error":     err.Error(),
		})
	}
}
