// Package broadcast implements the Maelstrom broadcast workload.
//
// Values learnt from a client or a peer are gossiped to the neighbours of the
// node, except the one they came from. Gossip to a neighbour is held in an
// outbox for a short delay so that values learnt meanwhile travel in the same
// message, then kept in a retry queue and re-sent until the neighbour answers
// with gossip_ok.
package broadcast

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/mosaicnetworks/maelnode/src/outbox"
	"github.com/mosaicnetworks/maelnode/src/retry"
	"github.com/sirupsen/logrus"
)

// ErrUnknownAck is returned for a gossip_ok that does not answer any message
// this node sent.
var ErrUnknownAck = errors.New("broadcast: acknowledgement of a message never sent")

// Metric keys emitted by the workload.
var (
	MetricOutboxMerges  = []string{"broadcast", "outbox", "merges"}
	MetricGossipSent    = []string{"broadcast", "gossip", "sent"}
	MetricRetries       = []string{"broadcast", "gossip", "retries"}
	MetricUnmatchedAcks = []string{"broadcast", "gossip", "unmatched_acks"}
)

// Config tunes the gossip of a node.
type Config struct {
	OutboxDelay time.Duration
	Backoff     retry.Backoff
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		OutboxDelay: 50 * time.Millisecond,
		Backoff:     retry.Linear{Base: 100 * time.Millisecond, Cap: 10},
	}
}

// Codec decodes the messages a broadcast node receives from clients and
// peers.
var Codec = message.NewCodec[message.Body](
	message.VariantOf[message.Body, Broadcast](),
	message.VariantOf[message.Body, Read](),
	message.VariantOf[message.Body, Topology](),
	message.VariantOf[message.Body, Gossip](),
	message.VariantOf[message.Body, GossipOk](),
)

// NewConstructor returns the node.Constructor of the workload.
func NewConstructor(conf Config) node.Constructor[message.Body] {
	return func(env node.Env) (node.State[message.Body], error) {
		return newState(conf, env, time.Now), nil
	}
}

// State is the broadcast state machine of one node.
type State struct {
	self    message.NodeID
	logger  *logrus.Entry
	metrics metrics.MetricSink
	ids     *message.Sequence
	sender  *message.Sender[message.Body]
	now     func() time.Time

	neighbours []message.NodeID

	seen     map[int64]bool
	messages []int64

	outbox  *outbox.Outbox[*Gossip]
	retries *retry.Scheduler[*Gossip]
}

func newState(conf Config, env node.Env, now func() time.Time) *State {
	logger := env.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	sink := env.Metrics
	if sink == nil {
		sink = &metrics.BlackholeSink{}
	}

	return &State{
		self:       env.ID,
		logger:     logger.WithField("workload", "broadcast"),
		metrics:    sink,
		ids:        env.IDs,
		sender:     message.NewSender[message.Body](env.ID, env.IDs),
		now:        now,
		neighbours: env.Others(),
		seen:       make(map[int64]bool),
		messages:   []int64{},
		outbox:     outbox.New[*Gossip](conf.OutboxDelay, mergeGossip),
		retries:    retry.New[*Gossip](conf.Backoff),
	}
}

// Handle implements node.State.
func (s *State) Handle(req message.Message[message.Body]) ([]message.Message[message.Body], error) {
	switch body := req.Body.(type) {
	case *Broadcast:
		s.learn(req.Src, []int64{body.Message})
		return s.reply(req, &BroadcastOk{})
	case *Gossip:
		s.learn(req.Src, body.Messages)
		return s.reply(req, &GossipOk{})
	case *GossipOk:
		return nil, s.acknowledge(req.Src, body)
	case *Read:
		messages := append(make([]int64, 0, len(s.messages)), s.messages...)
		return s.reply(req, &ReadOk{Messages: messages})
	case *Topology:
		s.setTopology(body.Topology)
		return s.reply(req, &TopologyOk{})
	}
	return nil, fmt.Errorf("broadcast: unexpected %s", req.Body.Type())
}

// WakeUp sends the gossip whose delay has passed, and re-sends the gossip
// nobody acknowledged in time.
func (s *State) WakeUp() ([]message.Message[message.Body], error) {
	now := s.now()
	var out []message.Message[message.Body]

	ready := s.outbox.DrainReady(now)
	for _, m := range ready {
		if err := s.sender.Stamp(m.Body); err != nil {
			return nil, err
		}
		s.retries.Insert(m, now)
		out = append(out, m.Generic())
	}

	due := s.retries.DrainDue(now)
	for _, m := range due {
		out = append(out, m.Generic())
	}

	if len(ready) > 0 {
		s.metrics.IncrCounter(MetricGossipSent, float32(len(ready)))
	}
	if len(due) > 0 {
		s.metrics.IncrCounter(MetricRetries, float32(len(due)))
		s.logger.WithField("count", len(due)).Debug("Re-sending unacknowledged gossip")
	}

	return out, nil
}

// NextWakeUp implements node.State.
func (s *State) NextWakeUp() (time.Time, bool) {
	next, ok := s.outbox.NextReady()
	if due, dueOK := s.retries.NextDue(); dueOK && (!ok || due.Before(next)) {
		next, ok = due, true
	}
	return next, ok
}

// Messages returns the values known to the node, in the order they were
// learnt.
func (s *State) Messages() []int64 {
	return s.messages
}

func (s *State) reply(req message.Message[message.Body], body message.Body) ([]message.Message[message.Body], error) {
	reply, err := s.sender.Reply(req, body)
	if err != nil {
		return nil, err
	}
	return []message.Message[message.Body]{reply}, nil
}

// learn records the values not seen before and queues them for every
// neighbour but from.
func (s *State) learn(from message.NodeID, values []int64) {
	var fresh []int64
	for _, v := range values {
		if !s.seen[v] {
			s.seen[v] = true
			s.messages = append(s.messages, v)
			fresh = append(fresh, v)
		}
	}
	if len(fresh) == 0 {
		return
	}

	now := s.now()
	for _, n := range s.neighbours {
		if n == from {
			continue
		}
		// Every destination gets its own body since merging mutates it.
		gossip := &Gossip{Messages: append([]int64(nil), fresh...)}
		if s.outbox.MergeOrPush(message.New(s.self, n, gossip), now) {
			s.metrics.IncrCounter(MetricOutboxMerges, 1)
		}
	}
}

// acknowledge drops the gossip answered by ack. A retried gossip may be
// answered several times: acks for gossip that is no longer pending are
// ignored, but an ack for an id this node never issued is an error.
func (s *State) acknowledge(from message.NodeID, ack *GossipOk) error {
	id, ok := ack.ReplyTo()
	if !ok || !s.ids.Issued(id) {
		return fmt.Errorf("%w: gossip_ok from %s", ErrUnknownAck, from)
	}
	if s.retries.Acknowledge(id) {
		return nil
	}
	s.metrics.IncrCounter(MetricUnmatchedAcks, 1)
	s.logger.WithFields(logrus.Fields{
		"from":        from.String(),
		"in_reply_to": id,
	}).Debug("Ignoring duplicate gossip_ok")
	return nil
}

func (s *State) setTopology(topology map[string][]message.NodeID) {
	neighbours, ok := topology[s.self.String()]
	if !ok {
		s.logger.Warn("Topology does not mention this node, keeping all peers as neighbours")
		return
	}
	s.neighbours = neighbours
	s.logger.WithField("neighbours", len(neighbours)).Debug("Topology")
}

func mergeGossip(into, from *Gossip) *Gossip {
	known := make(map[int64]bool, len(into.Messages))
	for _, v := range into.Messages {
		known[v] = true
	}
	for _, v := range from.Messages {
		if !known[v] {
			known[v] = true
			into.Messages = append(into.Messages, v)
		}
	}
	return into
}
