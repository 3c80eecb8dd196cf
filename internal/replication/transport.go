// Package replication defines the pluggable transport a distributed
// deployment uses to push cache writes to replica nodes. The engine treats
// replication as best effort: local cache state is the source of truth and
// a transport failure is logged, never rolled back.
package replication

import (
	"context"
	"time"
)

// Op identifies the replicated operation.
type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// Event is one replicated cache write.
type Event struct {
	Op        Op        `json:"op"`
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value,omitempty"` // serialized payload for sets
	TTL       int64     `json:"ttl_seconds,omitempty"`
	Targets   []string  `json:"targets,omitempty"` // replica node IDs
	Timestamp time.Time `json:"timestamp"`
}

// Transport pushes replication events to remote nodes. Implementations must
// be safe for concurrent use and should return quickly; the engine calls
// Replicate on the write path.
type Transport interface {
	// Replicate pushes a single event toward its target nodes.
	Replicate(ctx context.Context, event Event) error

	// Sync flushes any buffered events. Called periodically by the
	// maintenance scheduler's replica-sync task.
	Sync(ctx context.Context) error

	Close() error
}

// Noop is the single-node default: every call succeeds and does nothing.
type Noop struct{}

func (Noop) Replicate(ctx context.Context, event Event) error { return nil }
func (Noop) Sync(ctx context.Context) error                   { return nil }
func (Noop) Close() error                                     { return nil }
