package cache

import "time"

// Priority classifies how reluctant the engine is to evict an entry under
// size pressure. Critical entries are never size-evicted, only expired.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a priority name to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// Eviction policy kinds selectable per namespace.
const (
	EvictionLRU  = "lru"
	EvictionLFU  = "lfu"
	EvictionFIFO = "fifo"
	EvictionTTL  = "ttl"
)

// Entry is a single cached item plus the metadata the eviction policies and
// capacity accounting need. SizeBytes is the serialized size computed once
// at insertion; it is never recomputed.
type Entry struct {
	Key          string
	Value        interface{} // nil when Compressed
	Data         []byte      // compressed serialized form, set only when Compressed
	ValueType    string      // serialization type tag, set only when Compressed
	SizeBytes    int64
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  uint64
	TTL          time.Duration
	ExpiresAt    time.Time // zero means no expiry
	Tags         []string
	Priority     Priority
	Compressed   bool

	// insertion sequence, breaks LFU ties in insertion order
	seq uint64
}

// IsExpired checks if the entry has expired
func (e *Entry) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

// IsExpiredAt checks expiry against an explicit clock reading
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// HasAnyTag reports whether the entry carries at least one of the given tags
func (e *Entry) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Policy is the per-namespace configuration: capacity limits, default TTL,
// eviction kind, compression threshold and replication factor.
type Policy struct {
	MaxSizeBytes         int64
	MaxEntries           int
	DefaultTTL           time.Duration
	EvictionKind         string
	CompressionThreshold int64
	ReplicationFactor    int
	WarmupOnStart        bool
}

// Pre-registered namespace names. Callers select a namespace by name rather
// than constructing policies inline.
const (
	NamespaceSession     = "session"
	NamespaceAPIResponse = "api_response"
	NamespaceDatabase    = "database"
	NamespaceDocument    = "document"
	NamespaceComputation = "computation"
	NamespaceStatic      = "static"
	NamespaceTemporary   = "temporary"
)

// DefaultPolicies returns the default policy table for the pre-registered
// namespaces.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		NamespaceSession: {
			MaxSizeBytes:         64 << 20,
			MaxEntries:           50000,
			DefaultTTL:           30 * time.Minute,
			EvictionKind:         EvictionLRU,
			CompressionThreshold: 8 << 10,
			ReplicationFactor:    1,
		},
		NamespaceAPIResponse: {
			MaxSizeBytes:         128 << 20,
			MaxEntries:           100000,
			DefaultTTL:           5 * time.Minute,
			EvictionKind:         EvictionLRU,
			CompressionThreshold: 4 << 10,
		},
		NamespaceDatabase: {
			MaxSizeBytes:         256 << 20,
			MaxEntries:           200000,
			DefaultTTL:           10 * time.Minute,
			EvictionKind:         EvictionLFU,
			CompressionThreshold: 4 << 10,
		},
		NamespaceDocument: {
			MaxSizeBytes:         512 << 20,
			MaxEntries:           10000,
			DefaultTTL:           time.Hour,
			EvictionKind:         EvictionLRU,
			CompressionThreshold: 16 << 10,
		},
		NamespaceComputation: {
			MaxSizeBytes:         128 << 20,
			MaxEntries:           50000,
			DefaultTTL:           30 * time.Minute,
			EvictionKind:         EvictionLFU,
			CompressionThreshold: 8 << 10,
		},
		NamespaceStatic: {
			MaxSizeBytes:         256 << 20,
			MaxEntries:           20000,
			DefaultTTL:           24 * time.Hour,
			EvictionKind:         EvictionFIFO,
			CompressionThreshold: 16 << 10,
			WarmupOnStart:        true,
		},
		NamespaceTemporary: {
			MaxSizeBytes:         32 << 20,
			MaxEntries:           20000,
			DefaultTTL:           time.Minute,
			EvictionKind:         EvictionTTL,
			CompressionThreshold: 8 << 10,
		},
	}
}
