// Package cluster tracks the cache node topology: node descriptors,
// heartbeat liveness, lifecycle events and consistent-hash replica
// placement. The registry is advisory state for a replication transport; it
// performs no network calls itself.
package cluster

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeStatus is the advisory health state of a cache node.
type NodeStatus string

const (
	NodeActive   NodeStatus = "active"
	NodeInactive NodeStatus = "inactive"
	NodeSyncing  NodeStatus = "syncing"
)

// LivenessThreshold is how long a node may go without a heartbeat before it
// is marked inactive.
const LivenessThreshold = 10 * time.Second

// Node describes a cache node in the replication topology.
type Node struct {
	ID            string     `json:"id"`
	Host          string     `json:"host"`
	Port          int        `json:"port"`
	Status        NodeStatus `json:"status"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	Capacity      int64      `json:"capacity"`
	Used          int64      `json:"used"`
	Replicas      []string   `json:"replicas,omitempty"`
}

// EventType identifies a node lifecycle transition.
type EventType string

const (
	EventNodeJoined    EventType = "node_joined"
	EventNodeInactive  EventType = "node_inactive"
	EventNodeRecovered EventType = "node_recovered"
	EventNodeLeft      EventType = "node_left"
)

// Event is a node lifecycle event published to registry subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Node      Node      `json:"node"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry tracks remote cache node descriptors and liveness. Lifecycle
// changes are fanned out to an explicit subscriber list instead of an
// ambient event bus, so monitoring collaborators opt in.
type Registry struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	threshold time.Duration

	subsMu sync.RWMutex
	subs   []chan Event
}

// NewRegistry creates an empty node registry with the default liveness
// threshold.
func NewRegistry() *Registry {
	return &Registry{
		nodes:     make(map[string]*Node),
		threshold: LivenessThreshold,
	}
}

// NewNodeID generates a unique node identifier.
func NewNodeID() string {
	return fmt.Sprintf("node-%s", uuid.New().String()[:8])
}

// Register adds or replaces a node descriptor. A new node starts active with
// a fresh heartbeat.
func (r *Registry) Register(node Node) {
	now := time.Now()
	if node.Status == "" {
		node.Status = NodeActive
	}
	if node.LastHeartbeat.IsZero() {
		node.LastHeartbeat = now
	}

	r.mu.Lock()
	_, existed := r.nodes[node.ID]
	r.nodes[node.ID] = &node
	r.mu.Unlock()

	if !existed {
		r.publish(Event{Type: EventNodeJoined, Node: node, Timestamp: now})
	}
}

// Remove drops a node from the registry.
func (r *Registry) Remove(nodeID string) bool {
	r.mu.Lock()
	node, exists := r.nodes[nodeID]
	if exists {
		delete(r.nodes, nodeID)
	}
	r.mu.Unlock()

	if exists {
		r.publish(Event{Type: EventNodeLeft, Node: *node, Timestamp: time.Now()})
	}
	return exists
}

// Heartbeat refreshes a node's liveness and usage. An inactive node that
// heartbeats again transitions back to active.
func (r *Registry) Heartbeat(nodeID string, used int64) bool {
	now := time.Now()

	r.mu.Lock()
	node, exists := r.nodes[nodeID]
	if !exists {
		r.mu.Unlock()
		return false
	}
	recovered := node.Status == NodeInactive
	node.LastHeartbeat = now
	node.Status = NodeActive
	if used >= 0 {
		node.Used = used
	}
	snapshot := *node
	r.mu.Unlock()

	if recovered {
		r.publish(Event{Type: EventNodeRecovered, Node: snapshot, Timestamp: now})
	}
	return true
}

// SetStatus overrides a node's status, used by a transport while a replica
// is resyncing.
func (r *Registry) SetStatus(nodeID string, status NodeStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, exists := r.nodes[nodeID]
	if !exists {
		return false
	}
	node.Status = status
	return true
}

// SweepLiveness marks nodes inactive when their last heartbeat is older than
// the threshold. Returns the number of transitions. Called periodically by
// the maintenance scheduler.
func (r *Registry) SweepLiveness(now time.Time) int {
	var flipped []Node

	r.mu.Lock()
	for _, node := range r.nodes {
		if node.Status == NodeActive && now.Sub(node.LastHeartbeat) > r.threshold {
			node.Status = NodeInactive
			flipped = append(flipped, *node)
		}
	}
	r.mu.Unlock()

	for _, node := range flipped {
		r.publish(Event{Type: EventNodeInactive, Node: node, Timestamp: now})
	}
	return len(flipped)
}

// Node returns a copy of the descriptor for nodeID.
func (r *Registry) Node(nodeID string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, exists := r.nodes[nodeID]
	if !exists {
		return Node{}, false
	}
	return *node, true
}

// Nodes returns a copy of every node descriptor keyed by node ID.
func (r *Registry) Nodes() map[string]Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Node, len(r.nodes))
	for id, node := range r.nodes {
		out[id] = *node
	}
	return out
}

// ActiveNodes returns the nodes currently considered live.
func (r *Registry) ActiveNodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		if node.Status == NodeActive {
			out = append(out, *node)
		}
	}
	return out
}

// Subscribe returns a channel of lifecycle events. Slow subscribers drop
// events rather than block the registry.
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()
	return ch
}

func (r *Registry) publish(event Event) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
