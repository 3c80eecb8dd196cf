package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockTable(t *testing.T) {
	t.Run("acquire and release", func(t *testing.T) {
		locks := newLockTable()
		assert.True(t, locks.TryAcquire("session:k", time.Second))
		assert.False(t, locks.TryAcquire("session:k", time.Second))
		assert.True(t, locks.Held("session:k"))

		locks.Release("session:k")
		assert.False(t, locks.Held("session:k"))
		assert.True(t, locks.TryAcquire("session:k", time.Second))
	})

	t.Run("independent keys do not contend", func(t *testing.T) {
		locks := newLockTable()
		assert.True(t, locks.TryAcquire("a", time.Second))
		assert.True(t, locks.TryAcquire("b", time.Second))
	})

	t.Run("expired lock auto-releases", func(t *testing.T) {
		locks := newLockTable()
		assert.True(t, locks.TryAcquire("k", 10*time.Millisecond))
		time.Sleep(20 * time.Millisecond)
		assert.False(t, locks.Held("k"))
		assert.True(t, locks.TryAcquire("k", time.Second), "a lapsed lock must be reacquirable")
	})

	t.Run("release of unheld key is a no-op", func(t *testing.T) {
		locks := newLockTable()
		locks.Release("never-held")
	})

	t.Run("prune drops only expired records", func(t *testing.T) {
		locks := newLockTable()
		locks.TryAcquire("stale", 10*time.Millisecond)
		locks.TryAcquire("live", time.Hour)

		pruned := locks.Prune(time.Now().Add(time.Second))
		assert.Equal(t, 1, pruned)
		assert.True(t, locks.Held("live"))
	})

	t.Run("non-positive timeout uses the default", func(t *testing.T) {
		locks := newLockTable()
		assert.True(t, locks.TryAcquire("k", 0))
		assert.True(t, locks.Held("k"))
	})
}
