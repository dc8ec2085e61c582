// Package echo implements the Maelstrom echo workload: every echo request is
// answered with its own payload.
package echo

import (
	"fmt"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
)

// Echo is the client request.
type Echo struct {
	message.Header
	Echo string `json:"echo"`
}

// Type implements message.Body.
func (*Echo) Type() string { return "echo" }

// EchoOk answers Echo.
type EchoOk struct {
	message.Header
	Echo string `json:"echo"`
}

// Type implements message.Body.
func (*EchoOk) Type() string { return "echo_ok" }

// Codec decodes the requests of the workload.
var Codec = message.NewCodec[message.Body](
	message.VariantOf[message.Body, Echo](),
)

// State answers echo requests.
type State struct {
	node.Passive[message.Body]
	sender *message.Sender[message.Body]
}

// New is a node.Constructor.
func New(env node.Env) (node.State[message.Body], error) {
	return &State{
		sender: message.NewSender[message.Body](env.ID, env.IDs),
	}, nil
}

// Handle implements node.State.
func (s *State) Handle(req message.Message[message.Body]) ([]message.Message[message.Body], error) {
	body, ok := req.Body.(*Echo)
	if !ok {
		return nil, fmt.Errorf("echo: unexpected %s", req.Body.Type())
	}
	reply, err := s.sender.Reply(req, &EchoOk{Echo: body.Echo})
	if err != nil {
		return nil, err
	}
	return []message.Message[message.Body]{reply}, nil
}
