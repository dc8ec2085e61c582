// Package uniqueids implements the Maelstrom unique-ids workload. An id is the
// pair of the node id and a per-node counter, so nodes never need to
// coordinate.
package uniqueids

import (
	"errors"
	"fmt"
	"math"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
)

// ErrExhausted is returned once the counter of a node has wrapped around.
var ErrExhausted = errors.New("uniqueids: exhausted available ids")

// UniqueID is encoded as a [node, counter] array.
type UniqueID struct {
	_struct bool `codec:",toarray"`

	Node    message.NodeID
	Counter uint64
}

// Generate is the client request.
type Generate struct {
	message.Header
}

// Type implements message.Body.
func (*Generate) Type() string { return "generate" }

// GenerateOk answers Generate.
type GenerateOk struct {
	message.Header
	UniqueID UniqueID `json:"id"`
}

// Type implements message.Body.
func (*GenerateOk) Type() string { return "generate_ok" }

var _ message.Body = (*GenerateOk)(nil)

// Codec decodes the requests of the workload.
var Codec = message.NewCodec[message.Body](
	message.VariantOf[message.Body, Generate](),
)

// State hands out ids.
type State struct {
	node.Passive[message.Body]
	sender *message.Sender[message.Body]
	self   message.NodeID
	next   uint64
	done   bool
}

// New is a node.Constructor.
func New(env node.Env) (node.State[message.Body], error) {
	return &State{
		sender: message.NewSender[message.Body](env.ID, env.IDs),
		self:   env.ID,
	}, nil
}

func (s *State) nextID() (UniqueID, error) {
	if s.done {
		return UniqueID{}, ErrExhausted
	}
	id := UniqueID{Node: s.self, Counter: s.next}
	if s.next == math.MaxUint64 {
		s.done = true
	} else {
		s.next++
	}
	return id, nil
}

// Handle implements node.State.
func (s *State) Handle(req message.Message[message.Body]) ([]message.Message[message.Body], error) {
	if _, ok := req.Body.(*Generate); !ok {
		return nil, fmt.Errorf("uniqueids: unexpected %s", req.Body.Type())
	}
	id, err := s.nextID()
	if err != nil {
		return nil, err
	}
	reply, err := s.sender.Reply(req, &GenerateOk{UniqueID: id})
	if err != nil {
		return nil, err
	}
	return []message.Message[message.Body]{reply}, nil
}
