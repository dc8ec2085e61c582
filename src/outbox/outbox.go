// Package outbox implements a delay queue that coalesces outbound messages
// addressed to the same destination.
//
// A node that fans out many small updates (eg. broadcast values) to its
// neighbours pushes them into an Outbox instead of sending them right away.
// Updates for a destination that already has a pending entry are merged into
// that entry with the protocol's merge function, so after the delay a single
// message carries all of them. The Outbox does not deliver anything itself:
// whoever drains it is expected to hand the messages to a retry.Scheduler.
package outbox

import (
	"time"

	"github.com/mosaicnetworks/maelnode/src/message"
)

// MergeFunc combines the payload of from into into and returns the result. It
// must be associative, and merging a value that is already present must not
// duplicate it.
type MergeFunc[B message.Body] func(into, from B) B

type entry[B message.Body] struct {
	msg       message.Message[B]
	sendAfter time.Time
}

// Outbox holds at most one pending message per destination. It is not safe
// for concurrent use.
type Outbox[B message.Body] struct {
	delay time.Duration
	merge MergeFunc[B]

	// pending is in insertion order; byDest indexes it.
	pending []*entry[B]
	byDest  map[message.NodeID]*entry[B]
}

// New returns an Outbox holding messages for delay before they are ready.
func New[B message.Body](delay time.Duration, merge MergeFunc[B]) *Outbox[B] {
	return &Outbox[B]{
		delay:  delay,
		merge:  merge,
		byDest: make(map[message.NodeID]*entry[B]),
	}
}

// MergeOrPush queues m, merging it into the pending message for m.Dest if
// there is one. It reports whether a merge happened.
func (o *Outbox[B]) MergeOrPush(m message.Message[B], now time.Time) bool {
	if e, ok := o.byDest[m.Dest]; ok {
		e.msg.Body = o.merge(e.msg.Body, m.Body)
		return true
	}

	e := &entry[B]{msg: m, sendAfter: now.Add(o.delay)}
	o.pending = append(o.pending, e)
	o.byDest[m.Dest] = e
	return false
}

// NextReady returns the earliest time at which a pending message is ready.
func (o *Outbox[B]) NextReady() (time.Time, bool) {
	var next time.Time
	for i, e := range o.pending {
		if i == 0 || e.sendAfter.Before(next) {
			next = e.sendAfter
		}
	}
	return next, len(o.pending) > 0
}

// DrainReady removes and returns every message whose delay has elapsed at
// now, in insertion order. Messages that are not ready yet stay queued in
// their original order.
func (o *Outbox[B]) DrainReady(now time.Time) []message.Message[B] {
	var ready []message.Message[B]
	kept := o.pending[:0]
	for _, e := range o.pending {
		if e.sendAfter.After(now) {
			kept = append(kept, e)
			continue
		}
		ready = append(ready, e.msg)
		delete(o.byDest, e.msg.Dest)
	}
	for i := len(kept); i < len(o.pending); i++ {
		o.pending[i] = nil
	}
	o.pending = kept
	return ready
}

// Len returns the number of pending messages.
func (o *Outbox[B]) Len() int {
	return len(o.pending)
}
