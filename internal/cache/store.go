package cache

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// Store is the entry store for a single namespace. All mutations on the
// entry map and the statistics counters are serialized behind the store's
// mutex, scoped to this namespace only, so independent namespaces proceed
// concurrently.
type Store struct {
	name       string
	policy     Policy
	compressor Compressor

	mu      sync.RWMutex
	entries map[string]*Entry
	seq     uint64

	stats *Statistics
}

// NewStore creates an entry store for the given namespace.
func NewStore(name string, policy Policy, compressor Compressor) *Store {
	if compressor == nil {
		compressor = NoopCompressor{}
	}
	return &Store{
		name:       name,
		policy:     policy,
		compressor: compressor,
		entries:    make(map[string]*Entry),
		stats:      NewStatistics(),
	}
}

// Name returns the namespace name.
func (s *Store) Name() string { return s.name }

// Policy returns the namespace policy.
func (s *Store) Policy() Policy { return s.policy }

// Stats returns the namespace statistics tracker.
func (s *Store) Stats() *Statistics { return s.stats }

// SetOptions carries the per-call overrides for Set.
type SetOptions struct {
	TTL      time.Duration // 0 means use the namespace default
	Tags     []string
	Priority Priority
}

// Set inserts or overwrites an entry. Ordering follows the capacity
// contract: evict for count, then for size, before the insert completes.
// Returns the entry's serialized size, or an error when the value cannot be
// serialized (the one failure mode that rejects a write).
func (s *Store) Set(key string, value interface{}, opts SetOptions) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("key cannot be empty")
	}

	// Serialize outside the lock; sizing and compression are the only
	// expensive steps and must not hold up other keys.
	serialized, valueType, err := serializeValue(value)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize value for %q: %w", key, err)
	}
	sizeBytes := int64(len(serialized))

	compressed := false
	var data []byte
	if s.policy.CompressionThreshold > 0 && sizeBytes > s.policy.CompressionThreshold {
		if _, noop := s.compressor.(NoopCompressor); !noop {
			packed, cerr := s.compressor.Compress(serialized)
			if cerr != nil {
				return 0, fmt.Errorf("failed to compress value for %q: %w", key, cerr)
			}
			data = packed
			compressed = true
		}
	}

	now := time.Now()
	ttl := opts.TTL
	if ttl == 0 {
		ttl = s.policy.DefaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Overwrite frees the old entry's accounting first; it is not an
	// eviction.
	if old, exists := s.entries[key]; exists {
		s.removeLocked(old, false)
	}

	// Evict-then-insert: count overflow removes ~10% by the configured
	// policy before the new entry lands.
	if s.policy.MaxEntries > 0 && len(s.entries) >= s.policy.MaxEntries {
		batch := countEvictionBatch(len(s.entries))
		s.evictLocked(selectVictims(s.snapshotLocked(), s.policy.EvictionKind, batch))
	}

	// Size overflow runs the priority-aware path. Breaching the limit is
	// accepted backpressure once only critical entries remain.
	if s.policy.MaxSizeBytes > 0 {
		need := s.stats.TotalSizeBytes() + sizeBytes - s.policy.MaxSizeBytes
		if need > 0 {
			s.evictLocked(selectSizeVictims(s.snapshotLocked(), need))
		}
	}

	s.seq++
	entry := &Entry{
		Key:          key,
		SizeBytes:    sizeBytes,
		CreatedAt:    now,
		LastAccessed: now,
		TTL:          ttl,
		ExpiresAt:    expiresAt,
		Tags:         opts.Tags,
		Priority:     opts.Priority,
		seq:          s.seq,
	}
	if compressed {
		entry.Data = data
		entry.ValueType = valueType
		entry.Compressed = true
	} else {
		entry.Value = value
	}

	s.entries[key] = entry
	s.stats.Set()
	s.stats.AddEntries(1)
	s.stats.AddSize(sizeBytes)

	return sizeBytes, nil
}

// Get returns the live value for key. A lazily-expired entry is removed and
// counted as an eviction plus a miss, since its space is reclaimed.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	entry, exists := s.entries[key]
	if !exists {
		s.mu.Unlock()
		s.stats.Miss()
		return nil, false
	}

	if entry.IsExpired() {
		s.removeLocked(entry, true)
		s.mu.Unlock()
		s.stats.Miss()
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessed = time.Now()
	compressed := entry.Compressed
	value := entry.Value
	data := entry.Data
	valueType := entry.ValueType
	s.mu.Unlock()

	if compressed {
		raw, err := s.compressor.Decompress(data)
		if err != nil {
			// Unreadable payload degrades to a miss rather than failing
			// the caller.
			s.stats.Miss()
			return nil, false
		}
		decoded, err := deserializeValue(raw, valueType)
		if err != nil {
			s.stats.Miss()
			return nil, false
		}
		value = decoded
	}

	s.stats.Hit()
	return value, true
}

// Contains reports whether a live, unexpired entry exists without touching
// access metadata or counters.
func (s *Store) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.entries[key]
	return exists && !entry.IsExpired()
}

// Delete removes an entry if present and reports whether one was removed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return false
	}
	s.removeLocked(entry, false)
	s.stats.Delete()
	return true
}

// Flush removes every entry without touching hit/miss history.
func (s *Store) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.entries)
	for _, entry := range s.entries {
		s.stats.AddSize(-entry.SizeBytes)
	}
	s.entries = make(map[string]*Entry)
	s.stats.AddEntries(int64(-removed))
	return removed
}

// InvalidatePattern removes entries whose key contains the pattern, or
// matches it when the pattern carries glob metacharacters. Returns the
// number removed.
func (s *Store) InvalidatePattern(pattern string) int {
	glob := strings.ContainsAny(pattern, "*?[")

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		match := false
		if glob {
			if ok, err := path.Match(pattern, key); err == nil && ok {
				match = true
			}
		} else if strings.Contains(key, pattern) {
			match = true
		}
		if match {
			s.removeLocked(entry, false)
			s.stats.Delete()
			removed++
		}
	}
	return removed
}

// InvalidateTags removes entries whose tag set intersects the given tags.
// Single scan over live entries; invalidation is not a hot path.
func (s *Store) InvalidateTags(tags []string) int {
	if len(tags) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, entry := range s.entries {
		if entry.HasAnyTag(tags) {
			s.removeLocked(entry, false)
			s.stats.Delete()
			removed++
		}
	}
	return removed
}

// SweepExpired removes every entry past its expiry. Returns the number
// removed; each counts as an eviction.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, entry := range s.entries {
		if entry.IsExpiredAt(now) {
			s.removeLocked(entry, true)
			removed++
		}
	}
	return removed
}

// EvictBatch runs one count-based eviction pass regardless of current
// occupancy. Used by the memory-pressure safety valve.
func (s *Store) EvictBatch() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	victims := selectVictims(s.snapshotLocked(), s.policy.EvictionKind, countEvictionBatch(len(s.entries)))
	s.evictLocked(victims)
	return len(victims)
}

// Len returns the current number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns a snapshot of all keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// Snapshot returns the namespace statistics.
func (s *Store) Snapshot() Snapshot {
	return s.stats.Snapshot(s.name)
}

// snapshotLocked copies the live entry set for victim selection. Caller must
// hold the mutex.
func (s *Store) snapshotLocked() []*Entry {
	entries := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries
}

// evictLocked removes the given victims and counts them as evictions.
// Caller must hold the mutex.
func (s *Store) evictLocked(victims []*Entry) {
	for _, victim := range victims {
		if _, exists := s.entries[victim.Key]; exists {
			s.removeLocked(victim, true)
		}
	}
}

// removeLocked deletes an entry and keeps the byte/entry accounting
// transactional with the removal. Caller must hold the mutex.
func (s *Store) removeLocked(entry *Entry, evicted bool) {
	delete(s.entries, entry.Key)
	s.stats.AddSize(-entry.SizeBytes)
	s.stats.AddEntries(-1)
	if evicted {
		s.stats.Eviction(1)
	}
}
