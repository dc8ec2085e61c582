package node

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type timerFactory func(time.Duration) <-chan time.Time

type wakeRequest struct {
	at  time.Time
	set bool
}

// ControlTimer owns the single wake-up timer of a node. Every request replaces
// the previous one: the old timer is abandoned and, if the new time is in the
// future, a fresh one is armed. A time in the past produces a wake-up right
// away. A request without time only cancels.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan<- event     //sends wake-up events to the driver
	resetCh      chan wakeRequest //receives the next desired wake-up
	logger       *logrus.Entry
}

// NewControlTimer returns a ControlTimer delivering wake-ups on tickCh.
func NewControlTimer(tickCh chan<- event, bufferSize int, logger *logrus.Entry) *ControlTimer {
	return &ControlTimer{
		timerFactory: time.After,
		tickCh:       tickCh,
		resetCh:      make(chan wakeRequest, bufferSize),
		logger:       logger,
	}
}

// Reset asks for a wake-up at t, replacing any pending one.
func (c *ControlTimer) Reset(ctx context.Context, t time.Time) error {
	return c.request(ctx, wakeRequest{at: t, set: true})
}

// Stop cancels the pending wake-up, if any.
func (c *ControlTimer) Stop(ctx context.Context) error {
	return c.request(ctx, wakeRequest{})
}

func (c *ControlTimer) request(ctx context.Context, req wakeRequest) error {
	select {
	case c.resetCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown makes Run return once pending requests are consumed. Only the
// goroutine issuing requests may call it.
func (c *ControlTimer) Shutdown() {
	close(c.resetCh)
}

// Run is the loop of the timer. It returns when ctx is done or after Shutdown.
func (c *ControlTimer) Run(ctx context.Context) error {
	var (
		timer   <-chan time.Time
		pending bool // a wake-up is due but not delivered yet
	)

	for {
		var tickCh chan<- event
		if pending {
			tickCh = c.tickCh
		}

		select {
		case req, ok := <-c.resetCh:
			if !ok {
				return nil
			}
			// Dropping the channel is enough to cancel: nobody will ever
			// read a value from the superseded timer.
			timer = nil
			pending = false
			if !req.set {
				continue
			}
			if d := time.Until(req.at); d > 0 {
				timer = c.timerFactory(d)
			} else {
				pending = true
			}
		case <-timer:
			timer = nil
			pending = true
		case tickCh <- event{kind: wakeUpEvent}:
			c.logger.Debug("< WAKE UP")
			pending = false
		case <-ctx.Done():
			return nil
		}
	}
}
