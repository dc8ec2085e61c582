// Package retry keeps sent messages around until they are acknowledged,
// re-emitting them with a capped backoff.
//
// Delivery is at-least-once: an entry is re-sent forever until a reply
// correlated to it removes it, so receivers must tolerate duplicates.
package retry

import (
	"sort"
	"time"

	"github.com/mosaicnetworks/maelnode/src/message"
)

// Backoff maps the number of past attempts to the delay before the next one.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Linear waits Base*(attempt+1), capped at Base*Cap. A Cap below 1 counts
// as 1.
type Linear struct {
	Base time.Duration
	Cap  int
}

// Delay implements Backoff.
func (l Linear) Delay(attempt int) time.Duration {
	limit := l.Cap
	if limit < 1 {
		limit = 1
	}
	n := attempt + 1
	if n > limit {
		n = limit
	}
	return l.Base * time.Duration(n)
}

// Entry is a message waiting for acknowledgement.
type Entry[B message.Body] struct {
	Message   message.Message[B]
	SendAfter time.Time
	Attempts  int
}

// Scheduler is a queue of unacknowledged messages sorted by SendAfter. It is
// not safe for concurrent use.
type Scheduler[B message.Body] struct {
	backoff Backoff
	queue   []*Entry[B]
}

// New returns an empty Scheduler.
func New[B message.Body](backoff Backoff) *Scheduler[B] {
	return &Scheduler[B]{backoff: backoff}
}

// Insert schedules the first retry of m, which has just been sent.
func (s *Scheduler[B]) Insert(m message.Message[B], now time.Time) {
	s.insert(&Entry[B]{
		Message:   m,
		SendAfter: now.Add(s.backoff.Delay(0)),
	})
}

// insert keeps the queue sorted; entries due at the same time keep their
// insertion order.
func (s *Scheduler[B]) insert(e *Entry[B]) {
	i := sort.Search(len(s.queue), func(i int) bool {
		return s.queue[i].SendAfter.After(e.SendAfter)
	})
	s.queue = append(s.queue, nil)
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = e
}

// Remove cancels the first entry matching pred and reports whether there was
// one. At most one entry is removed.
func (s *Scheduler[B]) Remove(pred func(message.Message[B]) bool) bool {
	for i, e := range s.queue {
		if pred(e.Message) {
			copy(s.queue[i:], s.queue[i+1:])
			s.queue[len(s.queue)-1] = nil
			s.queue = s.queue[:len(s.queue)-1]
			return true
		}
	}
	return false
}

// Acknowledge removes the entry whose msg_id is inReplyTo.
func (s *Scheduler[B]) Acknowledge(inReplyTo message.MessageID) bool {
	return s.Remove(func(m message.Message[B]) bool {
		id, ok := m.Body.ID()
		return ok && id == inReplyTo
	})
}

// DrainDue returns the messages due at now, in ascending SendAfter order, and
// reschedules each of them for another attempt.
func (s *Scheduler[B]) DrainDue(now time.Time) []message.Message[B] {
	n := sort.Search(len(s.queue), func(i int) bool {
		return s.queue[i].SendAfter.After(now)
	})
	if n == 0 {
		return nil
	}

	due := make([]*Entry[B], n)
	copy(due, s.queue[:n])
	s.queue = append(s.queue[:0], s.queue[n:]...)

	msgs := make([]message.Message[B], n)
	for i, e := range due {
		msgs[i] = e.Message
		e.Attempts++
		e.SendAfter = now.Add(s.backoff.Delay(e.Attempts))
		s.insert(e)
	}
	return msgs
}

// NextDue returns the time of the earliest scheduled retry.
func (s *Scheduler[B]) NextDue() (time.Time, bool) {
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].SendAfter, true
}

// Len returns the number of unacknowledged messages.
func (s *Scheduler[B]) Len() int {
	return len(s.queue)
}
