package broadcast

import "github.com/mosaicnetworks/maelnode/src/message"

// Broadcast asks the cluster to remember Message.
type Broadcast struct {
	message.Header
	Message int64 `json:"message"`
}

// Type implements message.Body.
func (*Broadcast) Type() string { return "broadcast" }

// BroadcastOk answers Broadcast.
type BroadcastOk struct {
	message.Header
}

// Type implements message.Body.
func (*BroadcastOk) Type() string { return "broadcast_ok" }

// Read asks for every value the node knows.
type Read struct {
	message.Header
}

// Type implements message.Body.
func (*Read) Type() string { return "read" }

// ReadOk answers Read.
type ReadOk struct {
	message.Header
	Messages []int64 `json:"messages"`
}

// Type implements message.Body.
func (*ReadOk) Type() string { return "read_ok" }

// Topology gives the neighbours of every node.
type Topology struct {
	message.Header
	Topology map[string][]message.NodeID `json:"topology"`
}

// Type implements message.Body.
func (*Topology) Type() string { return "topology" }

// TopologyOk answers Topology.
type TopologyOk struct {
	message.Header
}

// Type implements message.Body.
func (*TopologyOk) Type() string { return "topology_ok" }

// Gossip carries values between nodes.
type Gossip struct {
	message.Header
	Messages []int64 `json:"messages"`
}

// Type implements message.Body.
func (*Gossip) Type() string { return "gossip" }

// GossipOk acknowledges Gossip.
type GossipOk struct {
	message.Header
}

// Type implements message.Body.
func (*GossipOk) Type() string { return "gossip_ok" }
