package cache

import (
	"sync"
	"time"
)

// DefaultLockTimeout bounds how long a stampede lock may be held before it
// auto-releases, so a crashed factory can never deadlock a key.
const DefaultLockTimeout = 5 * time.Second

// lockBackoff is how long a losing caller waits before re-checking the
// cache during getOrSet contention.
const lockBackoff = 100 * time.Millisecond

// keyLock is a held flag with an expiry. A lock whose deadline has passed is
// treated as free regardless of whether Release was ever called.
type keyLock struct {
	expiresAt time.Time
}

// lockTable provides per-key mutual exclusion for the getOrSet path, keyed
// by "namespace:key".
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyLock)}
}

// TryAcquire attempts to take the lock for key with the given timeout.
// Returns true when the lock was free or a previous holder's timeout has
// lapsed.
func (t *lockTable) TryAcquire(key string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if lock, held := t.locks[key]; held && now.Before(lock.expiresAt) {
		return false
	}
	t.locks[key] = &keyLock{expiresAt: now.Add(timeout)}
	return true
}

// Release frees the lock for key. Safe to call when the lock already
// auto-released.
func (t *lockTable) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, key)
}

// Held reports whether an unexpired lock exists for key.
func (t *lockTable) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, held := t.locks[key]
	return held && time.Now().Before(lock.expiresAt)
}

// Prune drops expired lock records so the table does not accumulate keys
// from callers that never released. Called by the maintenance scheduler.
func (t *lockTable) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pruned := 0
	for key, lock := range t.locks {
		if now.After(lock.expiresAt) {
			delete(t.locks, key)
			pruned++
		}
	}
	return pruned
}
