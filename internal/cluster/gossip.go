package cluster

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/serf/serf"

	"stratacache/internal/logging"
)

// GossipConfig configures the optional serf-based membership provider.
type GossipConfig struct {
	NodeID           string
	ClusterName      string
	BindAddress      string
	BindPort         int
	AdvertiseAddress string
	SeedNodes        []string
	Capacity         int64
}

// Gossip keeps the node registry and hash ring in sync with a serf gossip
// cluster. It is an optional collaborator; a single-node engine runs without
// it and sees an empty topology.
type Gossip struct {
	config   GossipConfig
	registry *Registry
	ring     *Ring

	serf    *serf.Serf
	eventCh chan serf.Event
}

// NewGossip creates a gossip membership provider bound to the given
// registry and ring.
func NewGossip(config GossipConfig, registry *Registry, ring *Ring) (*Gossip, error) {
	if config.NodeID == "" {
		return nil, fmt.Errorf("gossip: node ID is required")
	}
	if registry == nil || ring == nil {
		return nil, fmt.Errorf("gossip: registry and ring are required")
	}
	return &Gossip{
		config:   config,
		registry: registry,
		ring:     ring,
		eventCh:  make(chan serf.Event, 256),
	}, nil
}

// Start creates the serf instance, joins the seed nodes and begins feeding
// membership changes into the registry.
func (g *Gossip) Start(ctx context.Context) error {
	conf := serf.DefaultConfig()
	conf.Init()

	conf.NodeName = g.config.NodeID
	conf.MemberlistConfig.BindAddr = g.config.BindAddress
	conf.MemberlistConfig.BindPort = g.config.BindPort
	if g.config.AdvertiseAddress != "" {
		conf.MemberlistConfig.AdvertiseAddr = g.config.AdvertiseAddress
		conf.MemberlistConfig.AdvertisePort = g.config.BindPort
	}
	conf.EventCh = g.eventCh
	conf.Tags = map[string]string{
		"cluster":  g.config.ClusterName,
		"capacity": strconv.FormatInt(g.config.Capacity, 10),
	}

	instance, err := serf.Create(conf)
	if err != nil {
		return fmt.Errorf("gossip: failed to create serf instance: %w", err)
	}
	g.serf = instance

	go g.processEvents(ctx)

	// Register self
	g.registerMember(serf.Member{
		Name: g.config.NodeID,
		Port: uint16(g.config.BindPort),
		Tags: conf.Tags,
	})

	if len(g.config.SeedNodes) > 0 {
		joined, err := g.serf.Join(g.config.SeedNodes, true)
		if err != nil {
			logging.Warn(ctx, logging.ComponentGossip, logging.ActionStart, "Failed to join seed nodes", map[string]interface{}{
				"seeds": g.config.SeedNodes,
				"error": err.Error(),
			})
		} else {
			logging.Info(ctx, logging.ComponentGossip, logging.ActionStart, "Joined gossip cluster", map[string]interface{}{
				"joined": joined,
			})
		}
	}

	return nil
}

// Stop gracefully leaves the cluster and shuts down serf.
func (g *Gossip) Stop() error {
	if g.serf == nil {
		return nil
	}
	if err := g.serf.Leave(); err != nil {
		return fmt.Errorf("gossip: leave failed: %w", err)
	}
	return g.serf.Shutdown()
}

func (g *Gossip) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-g.eventCh:
			if !ok {
				return
			}
			switch e := event.(type) {
			case serf.MemberEvent:
				g.handleMemberEvent(ctx, e)
			}
		}
	}
}

func (g *Gossip) handleMemberEvent(ctx context.Context, event serf.MemberEvent) {
	for _, member := range event.Members {
		switch event.EventType() {
		case serf.EventMemberJoin:
			g.registerMember(member)
			logging.Info(ctx, logging.ComponentGossip, "member_join", "Node joined cluster", map[string]interface{}{
				"node_id": member.Name,
			})
		case serf.EventMemberLeave, serf.EventMemberFailed, serf.EventMemberReap:
			g.registry.Remove(member.Name)
			g.ring.RemoveNode(member.Name)
			logging.Info(ctx, logging.ComponentGossip, "member_leave", "Node left cluster", map[string]interface{}{
				"node_id": member.Name,
				"event":   event.EventType().String(),
			})
		case serf.EventMemberUpdate:
			g.registry.Heartbeat(member.Name, capacityTag(member, "used"))
		}
	}
}

func (g *Gossip) registerMember(member serf.Member) {
	host := ""
	if member.Addr != nil {
		host = member.Addr.String()
	}
	g.registry.Register(Node{
		ID:            member.Name,
		Host:          host,
		Port:          int(member.Port),
		Status:        NodeActive,
		LastHeartbeat: time.Now(),
		Capacity:      capacityTag(member, "capacity"),
	})
	g.ring.AddNode(member.Name)
}

func capacityTag(member serf.Member, tag string) int64 {
	raw, ok := member.Tags[tag]
	if !ok {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}
