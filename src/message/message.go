package message

import (
	"errors"
	"math"
)

var (
	// ErrIDsExhausted is returned when a Sequence has handed out every
	// representable MessageID.
	ErrIDsExhausted = errors.New("message: exhausted available message ids")
	// ErrNotCorrelated is returned when replying to a message without msg_id.
	ErrNotCorrelated = errors.New("message: request has no msg_id")
)

// MessageID identifies a message sent by one node. IDs are unique for the
// lifetime of the node process and are never reused.
type MessageID uint64

// Sequence generates fresh MessageIDs for a single node. It is not safe for
// concurrent use; it belongs to the goroutine driving the node.
type Sequence struct {
	next MessageID
}

// NewSequence returns a Sequence whose first id is 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next unused MessageID.
func (s *Sequence) Next() (MessageID, error) {
	if s.next == math.MaxUint64 {
		return 0, ErrIDsExhausted
	}
	id := s.next
	s.next++
	return id, nil
}

// Issued reports whether id has already been handed out by Next.
func (s *Sequence) Issued(id MessageID) bool {
	return id < s.next
}

// Header carries the correlation fields shared by every body. Bodies embed it
// so the fields appear inline next to the payload on the wire.
type Header struct {
	MsgID     *MessageID `json:"msg_id,omitempty"`
	InReplyTo *MessageID `json:"in_reply_to,omitempty"`
}

// ID returns the msg_id of the message, if any.
func (h *Header) ID() (MessageID, bool) {
	if h.MsgID == nil {
		return 0, false
	}
	return *h.MsgID, true
}

// SetID sets msg_id.
func (h *Header) SetID(id MessageID) {
	h.MsgID = &id
}

// ReplyTo returns the in_reply_to field, if any.
func (h *Header) ReplyTo() (MessageID, bool) {
	if h.InReplyTo == nil {
		return 0, false
	}
	return *h.InReplyTo, true
}

// SetReplyTo sets in_reply_to.
func (h *Header) SetReplyTo(id MessageID) {
	h.InReplyTo = &id
}

// Body is implemented by every payload variant of a protocol. Variants are
// pointers to structs embedding Header; Type returns the wire discriminator.
type Body interface {
	Type() string
	ID() (MessageID, bool)
	SetID(MessageID)
	ReplyTo() (MessageID, bool)
	SetReplyTo(MessageID)
}

// Message is the envelope exchanged between nodes.
type Message[B Body] struct {
	Src  NodeID
	Dest NodeID
	Body B
}

// New returns a message from src to dest.
func New[B Body](src, dest NodeID, body B) Message[B] {
	return Message[B]{Src: src, Dest: dest, Body: body}
}

// Generic erases the protocol type of m so it can travel next to messages of
// other protocols, eg. init_ok on the output channel.
func (m Message[B]) Generic() Message[Body] {
	return Message[Body]{Src: m.Src, Dest: m.Dest, Body: m.Body}
}

// Reply builds the response to req: source and destination are swapped and
// in_reply_to is set to the msg_id of req.
func Reply[B Body](req Message[B], body B) (Message[B], error) {
	id, ok := req.Body.ID()
	if !ok {
		return Message[B]{}, ErrNotCorrelated
	}
	body.SetReplyTo(id)
	return Message[B]{Src: req.Dest, Dest: req.Src, Body: body}, nil
}

// Sender builds outbound messages on behalf of one node, stamping fresh ids
// from the node's Sequence.
type Sender[B Body] struct {
	self NodeID
	ids  *Sequence
}

// NewSender returns a Sender for the node self.
func NewSender[B Body](self NodeID, ids *Sequence) *Sender[B] {
	return &Sender[B]{self: self, ids: ids}
}

// Self returns the id of the node this Sender sends for.
func (s *Sender[B]) Self() NodeID {
	return s.self
}

// Send returns a message to dest carrying a fresh msg_id.
func (s *Sender[B]) Send(dest NodeID, body B) (Message[B], error) {
	if err := s.Stamp(body); err != nil {
		return Message[B]{}, err
	}
	return New(s.self, dest, body), nil
}

// Stamp assigns a fresh msg_id to body.
func (s *Sender[B]) Stamp(body B) error {
	id, err := s.ids.Next()
	if err != nil {
		return err
	}
	body.SetID(id)
	return nil
}

// Reply is like the package level Reply. The reply also gets a fresh msg_id
// so the other side may acknowledge it in turn.
func (s *Sender[B]) Reply(req Message[B], body B) (Message[B], error) {
	reply, err := Reply(req, body)
	if err != nil {
		return reply, err
	}
	if err := s.Stamp(body); err != nil {
		return Message[B]{}, err
	}
	return reply, nil
}
