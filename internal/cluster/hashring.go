package cluster

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// defaultVirtualNodes balances placement distribution against ring memory.
const defaultVirtualNodes = 128

// virtualNode is one position a physical node occupies on the ring.
type virtualNode struct {
	hash   uint64
	nodeID string
}

// Ring implements consistent hashing with virtual nodes. It answers which
// nodes should hold the replicas for a key; it does not talk to them.
type Ring struct {
	mu           sync.RWMutex
	vnodes       []virtualNode // sorted by hash
	nodeIDs      map[string]struct{}
	virtualCount int
}

// NewRing creates an empty hash ring.
func NewRing(virtualCount int) *Ring {
	if virtualCount <= 0 {
		virtualCount = defaultVirtualNodes
	}
	return &Ring{
		nodeIDs:      make(map[string]struct{}),
		virtualCount: virtualCount,
	}
}

// AddNode places a node on the ring.
func (r *Ring) AddNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodeIDs[nodeID]; exists {
		return
	}
	r.nodeIDs[nodeID] = struct{}{}

	for i := 0; i < r.virtualCount; i++ {
		hash := xxhash.Sum64String(fmt.Sprintf("%s#%d", nodeID, i))
		r.vnodes = append(r.vnodes, virtualNode{hash: hash, nodeID: nodeID})
	}
	sort.Slice(r.vnodes, func(i, j int) bool { return r.vnodes[i].hash < r.vnodes[j].hash })
}

// RemoveNode takes a node off the ring.
func (r *Ring) RemoveNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodeIDs[nodeID]; !exists {
		return
	}
	delete(r.nodeIDs, nodeID)

	kept := r.vnodes[:0]
	for _, vn := range r.vnodes {
		if vn.nodeID != nodeID {
			kept = append(kept, vn)
		}
	}
	r.vnodes = kept
}

// Size returns the number of physical nodes on the ring.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodeIDs)
}

// ReplicasFor returns up to n distinct node IDs responsible for key, walking
// the ring clockwise from the key's position.
func (r *Ring) ReplicasFor(key string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || len(r.vnodes) == 0 {
		return nil
	}
	if n > len(r.nodeIDs) {
		n = len(r.nodeIDs)
	}

	hash := xxhash.Sum64String(key)
	start := sort.Search(len(r.vnodes), func(i int) bool { return r.vnodes[i].hash >= hash })

	seen := make(map[string]struct{}, n)
	replicas := make([]string, 0, n)
	for i := 0; len(replicas) < n && i < len(r.vnodes); i++ {
		vn := r.vnodes[(start+i)%len(r.vnodes)]
		if _, dup := seen[vn.nodeID]; dup {
			continue
		}
		seen[vn.nodeID] = struct{}{}
		replicas = append(replicas, vn.nodeID)
	}
	return replicas
}
