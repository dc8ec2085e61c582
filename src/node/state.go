package node

import (
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/sirupsen/logrus"
)

// State is the protocol-specific state machine of a node. The runtime calls
// its methods from a single goroutine, so implementations need no locking,
// but they must not block: every effect goes through the returned messages.
type State[B message.Body] interface {
	// Handle processes one inbound message.
	Handle(req message.Message[B]) ([]message.Message[B], error)

	// WakeUp is called shortly after the time last returned by NextWakeUp.
	WakeUp() ([]message.Message[B], error)

	// NextWakeUp is queried after every call to Handle or WakeUp. There is at
	// most one pending wake-up: returning false cancels it, so a state that
	// wants periodic wake-ups has to return a fresh time every time.
	NextWakeUp() (time.Time, bool)
}

// Env is what a State gets to know about its node once the init handshake is
// done.
type Env struct {
	// ID is the id of this node.
	ID message.NodeID
	// Peers are the ids of all nodes in the cluster, this one included.
	Peers []message.NodeID
	// IDs is the msg_id sequence of this node.
	IDs *message.Sequence

	Logger  *logrus.Entry
	Metrics metrics.MetricSink
}

// Others returns the peers without this node.
func (e Env) Others() []message.NodeID {
	others := make([]message.NodeID, 0, len(e.Peers))
	for _, p := range e.Peers {
		if p != e.ID {
			others = append(others, p)
		}
	}
	return others
}

// Constructor creates the State of a node after the handshake.
type Constructor[B message.Body] func(env Env) (State[B], error)

// Passive can be embedded by states that never ask to be woken up.
type Passive[B message.Body] struct{}

// WakeUp implements State.
func (Passive[B]) WakeUp() ([]message.Message[B], error) {
	return nil, nil
}

// NextWakeUp implements State.
func (Passive[B]) NextWakeUp() (time.Time, bool) {
	return time.Time{}, false
}
