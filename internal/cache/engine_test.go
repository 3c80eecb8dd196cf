package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratacache/internal/cluster"
	"stratacache/internal/replication"
)

func TestEngineDefaultNamespaces(t *testing.T) {
	engine := New()
	defer engine.Close()

	expected := []string{
		NamespaceSession, NamespaceAPIResponse, NamespaceDatabase,
		NamespaceDocument, NamespaceComputation, NamespaceStatic,
		NamespaceTemporary,
	}
	assert.ElementsMatch(t, expected, engine.Namespaces())

	store, ok := engine.Store(NamespaceTemporary)
	require.True(t, ok)
	assert.Equal(t, EvictionTTL, store.Policy().EvictionKind)
	assert.Equal(t, time.Minute, store.Policy().DefaultTTL)
}

func TestEngineNamespaceOverride(t *testing.T) {
	engine := New(WithNamespace("tenant_custom", Policy{MaxEntries: 10, EvictionKind: EvictionFIFO}))
	defer engine.Close()

	store, ok := engine.Store("tenant_custom")
	require.True(t, ok)
	assert.Equal(t, 10, store.Policy().MaxEntries)
}

func TestEngineGetSetDelete(t *testing.T) {
	ctx := context.Background()
	engine := New()
	defer engine.Close()

	t.Run("set then get", func(t *testing.T) {
		require.True(t, engine.Set(ctx, NamespaceSession, "user:1", "alice"))
		value, ok := engine.Get(ctx, NamespaceSession, "user:1")
		require.True(t, ok)
		assert.Equal(t, "alice", value)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		_, ok := engine.Get(ctx, NamespaceDatabase, "user:1")
		assert.False(t, ok)
	})

	t.Run("unknown namespace is a quiet failure", func(t *testing.T) {
		assert.False(t, engine.Set(ctx, "no_such", "k", "v"))
		_, ok := engine.Get(ctx, "no_such", "k")
		assert.False(t, ok)
		assert.False(t, engine.Delete(ctx, "no_such", "k"))
	})

	t.Run("delete reports prior existence", func(t *testing.T) {
		assert.True(t, engine.Delete(ctx, NamespaceSession, "user:1"))
		assert.False(t, engine.Delete(ctx, NamespaceSession, "user:1"))
	})
}

func TestEngineMGetMSet(t *testing.T) {
	ctx := context.Background()
	engine := New()
	defer engine.Close()

	results := engine.MSet(ctx, NamespaceAPIResponse, []Item{
		{Key: "a", Value: 1},
		{Key: "b", Value: 2, TTL: time.Hour},
	})
	assert.True(t, results["a"])
	assert.True(t, results["b"])

	values := engine.MGet(ctx, NamespaceAPIResponse, []string{"a", "b", "missing"})
	assert.Equal(t, 1, values["a"])
	assert.Equal(t, 2, values["b"])
	assert.Nil(t, values["missing"])
	assert.Len(t, values, 3, "every requested key appears in the result")
}

func TestEngineGetOrSet(t *testing.T) {
	ctx := context.Background()

	for _, mode := range []StampedeMode{StampedeBestEffort, StampedeStrict} {
		t.Run(string(mode), func(t *testing.T) {
			engine := New(WithStampedeMode(mode))
			defer engine.Close()

			t.Run("miss computes and caches", func(t *testing.T) {
				calls := 0
				value, err := engine.GetOrSet(ctx, NamespaceComputation, "result:1", func(ctx context.Context) (interface{}, error) {
					calls++
					return "computed", nil
				})
				require.NoError(t, err)
				assert.Equal(t, "computed", value)
				assert.Equal(t, 1, calls)

				cached, ok := engine.Get(ctx, NamespaceComputation, "result:1")
				require.True(t, ok)
				assert.Equal(t, "computed", cached)
			})

			t.Run("hit skips the factory", func(t *testing.T) {
				value, err := engine.GetOrSet(ctx, NamespaceComputation, "result:1", func(ctx context.Context) (interface{}, error) {
					t.Fatal("factory must not run on a hit")
					return nil, nil
				})
				require.NoError(t, err)
				assert.Equal(t, "computed", value)
			})

			t.Run("factory error propagates and caches nothing", func(t *testing.T) {
				wantErr := fmt.Errorf("upstream down")
				_, err := engine.GetOrSet(ctx, NamespaceComputation, "result:err", func(ctx context.Context) (interface{}, error) {
					return nil, wantErr
				})
				assert.ErrorIs(t, err, wantErr)

				_, ok := engine.Get(ctx, NamespaceComputation, "result:err")
				assert.False(t, ok)
			})

			t.Run("nil factory rejected", func(t *testing.T) {
				_, err := engine.GetOrSet(ctx, NamespaceComputation, "k", nil)
				assert.Error(t, err)
			})
		})
	}
}

func TestEngineGetOrSetStrictCoalesces(t *testing.T) {
	ctx := context.Background()
	engine := New(WithStampedeMode(StampedeStrict))
	defer engine.Close()

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := engine.GetOrSet(ctx, NamespaceComputation, "hot", func(ctx context.Context) (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return "expensive", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "expensive", value)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "all callers coalesce onto one computation")
}

func TestEngineGetOrSetBestEffortBounded(t *testing.T) {
	ctx := context.Background()
	engine := New(WithStampedeMode(StampedeBestEffort))
	defer engine.Close()

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := engine.GetOrSet(ctx, NamespaceComputation, "hot", func(ctx context.Context) (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(5 * time.Millisecond)
				return "expensive", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "expensive", value)
		}()
	}
	wg.Wait()

	// Losers may fall back to uncached computation, but far fewer than one
	// invocation per caller.
	total := atomic.LoadInt32(&calls)
	assert.GreaterOrEqual(t, total, int32(1))
	assert.Less(t, total, int32(20))
}

func TestEngineGetOrSetContextCanceled(t *testing.T) {
	engine := New(WithStampedeMode(StampedeBestEffort))
	defer engine.Close()

	// Hold the lock so the caller takes the contention path, then cancel
	// during its backoff.
	engine.locks.TryAcquire(NamespaceComputation+":blocked", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.GetOrSet(ctx, NamespaceComputation, "blocked", func(ctx context.Context) (interface{}, error) {
		return "v", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineInvalidate(t *testing.T) {
	ctx := context.Background()
	engine := New()
	defer engine.Close()

	engine.Set(ctx, NamespaceSession, "user:1:profile", "a")
	engine.Set(ctx, NamespaceSession, "user:2:profile", "b")
	engine.Set(ctx, NamespaceAPIResponse, "user:1:feed", "c")
	engine.Set(ctx, NamespaceDatabase, "order:1", "d")

	t.Run("scoped to named namespaces", func(t *testing.T) {
		removed := engine.Invalidate(ctx, "user:1", NamespaceSession)
		assert.Equal(t, 1, removed)
		_, ok := engine.Get(ctx, NamespaceAPIResponse, "user:1:feed")
		assert.True(t, ok, "other namespaces untouched")
	})

	t.Run("all namespaces when none named", func(t *testing.T) {
		removed := engine.Invalidate(ctx, "user:")
		assert.Equal(t, 2, removed)
	})
}

func TestEngineInvalidateByTags(t *testing.T) {
	ctx := context.Background()
	engine := New()
	defer engine.Close()

	engine.Set(ctx, NamespaceSession, "s1", "v", WithTags("tenant:acme"))
	engine.Set(ctx, NamespaceDatabase, "d1", "v", WithTags("tenant:acme", "hot"))
	engine.Set(ctx, NamespaceDatabase, "d2", "v", WithTags("tenant:other"))

	removed := engine.InvalidateByTags(ctx, []string{"tenant:acme"})
	assert.Equal(t, 2, removed)

	_, ok := engine.Get(ctx, NamespaceDatabase, "d2")
	assert.True(t, ok)
}

func TestEngineFlushAndStats(t *testing.T) {
	ctx := context.Background()
	engine := New()
	defer engine.Close()

	engine.Set(ctx, NamespaceSession, "k", "v")
	engine.Get(ctx, NamespaceSession, "k")

	snap, ok := engine.Stats(NamespaceSession)
	require.True(t, ok)
	assert.Equal(t, uint64(1), snap.Hits)
	assert.Equal(t, int64(1), snap.EntryCount)

	_, ok = engine.Stats("no_such")
	assert.False(t, ok)

	all := engine.AllStats()
	assert.Len(t, all, 7)

	engine.Flush(ctx, NamespaceSession)
	snap, _ = engine.Stats(NamespaceSession)
	assert.Zero(t, snap.EntryCount)
	assert.Equal(t, uint64(1), snap.Hits, "flush keeps counters")
}

func TestEngineSweepAndEvictAll(t *testing.T) {
	ctx := context.Background()
	engine := New()
	defer engine.Close()

	engine.Set(ctx, NamespaceTemporary, "gone", "v", WithTTL(10*time.Millisecond))
	engine.Set(ctx, NamespaceTemporary, "stays", "v", WithTTL(time.Hour))

	removed := engine.SweepExpired(time.Now().Add(time.Minute))
	assert.Equal(t, 1, removed)

	evicted := engine.EvictAll()
	assert.GreaterOrEqual(t, evicted, 1, "pressure pass evicts even under limits")
}

func TestEngineNodesWithoutTopology(t *testing.T) {
	engine := New()
	defer engine.Close()
	assert.Empty(t, engine.Nodes())
}

// captureTransport records replication events for assertions.
type captureTransport struct {
	mu     sync.Mutex
	events []replication.Event
}

func (c *captureTransport) Replicate(ctx context.Context, event replication.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureTransport) Sync(ctx context.Context) error { return nil }
func (c *captureTransport) Close() error                   { return nil }

func (c *captureTransport) snapshot() []replication.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]replication.Event(nil), c.events...)
}

func TestEngineReplication(t *testing.T) {
	ctx := context.Background()
	transport := &captureTransport{}

	registry := cluster.NewRegistry()
	ring := cluster.NewRing(0)
	ring.AddNode("peer-1")
	ring.AddNode("peer-2")

	engine := New(
		WithTransport(transport),
		WithTopology(registry, ring),
	)
	defer engine.Close()

	t.Run("replicated namespace publishes set and delete", func(t *testing.T) {
		engine.Set(ctx, NamespaceSession, "user:1", "alice")
		engine.Delete(ctx, NamespaceSession, "user:1")

		events := transport.snapshot()
		require.Len(t, events, 2)
		assert.Equal(t, replication.OpSet, events[0].Op)
		assert.Equal(t, NamespaceSession, events[0].Namespace)
		assert.NotEmpty(t, events[0].Targets)
		assert.Equal(t, replication.OpDelete, events[1].Op)
	})

	t.Run("factor zero namespaces stay local", func(t *testing.T) {
		before := len(transport.snapshot())
		engine.Set(ctx, NamespaceTemporary, "k", "v")
		assert.Len(t, transport.snapshot(), before)
	})
}
