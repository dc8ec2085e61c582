package node

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node/lifecycle"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type eventKind int

const (
	recordEvent eventKind = iota
	wakeUpEvent
	closedEvent
)

// event is what the driver consumes: an undecoded input record, a wake-up, or
// the end of the input.
type event struct {
	kind   eventKind
	record []byte
	err    error
}

// Node runs a State behind the Maelstrom line protocol. A Node runs once.
type Node[B message.Body] struct {
	conf    *Config
	logger  *logrus.Entry
	metrics metrics.MetricSink

	codec    *message.Codec[B]
	newState Constructor[B]

	events       chan event
	output       chan message.Message[message.Body]
	controlTimer *ControlTimer

	phase lifecycle.Manager

	// Owned by the driver.
	state   State[B]
	wakeAt  time.Time
	wakeSet bool
}

// NewNode returns a Node decoding its input with codec and building its State
// with newState once initialised.
func NewNode[B message.Body](conf *Config,
	codec *message.Codec[B],
	newState Constructor[B],
) *Node[B] {
	sink := conf.MetricSink
	if sink == nil {
		sink = &metrics.BlackholeSink{}
	}

	events := make(chan event, conf.EventBuffer)

	return &Node[B]{
		conf:         conf,
		logger:       conf.Logger,
		metrics:      sink,
		codec:        codec,
		newState:     newState,
		events:       events,
		output:       make(chan message.Message[message.Body], conf.OutputBuffer),
		controlTimer: NewControlTimer(events, 1, conf.Logger),
	}
}

// Run processes records from in and writes replies to out until in reaches
// EOF, one of the workers fails, or ctx is cancelled. It returns nil only on
// EOF, once every queued record has been handled and every reply written.
//
// The goroutine reading in cannot be interrupted: when Run fails, it stays
// blocked until in delivers data or is closed.
func (n *Node[B]) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)

	go n.readInput(ctx, in)

	g.Go(n.worker("driver", func() error { return n.drive(ctx) }))
	g.Go(n.worker("writer", func() error { return n.writeOutput(ctx, out) }))
	g.Go(n.worker("timer", func() error { return n.controlTimer.Run(ctx) }))

	err := g.Wait()
	n.phase.Set(lifecycle.Shutdown)
	return err
}

// Phase returns the current phase of the node. It is safe to call from any
// goroutine.
func (n *Node[B]) Phase() lifecycle.Phase {
	return n.phase.Get()
}

func (n *Node[B]) worker(name string, f func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s: %v", ErrWorkerPanic, name, r)
				n.logger.WithField("stack", string(debug.Stack())).Debug("Recovered panic")
			}
			if err != nil {
				n.logger.WithField("worker", name).WithError(err).Error("Worker stopped")
			}
		}()
		return f()
	}
}

/*******************************************************************************
Reader
*******************************************************************************/

func (n *Node[B]) readInput(ctx context.Context, in io.Reader) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: reader: %v", ErrWorkerPanic, r)
		}
		select {
		case n.events <- event{kind: closedEvent, err: err}:
		case <-ctx.Done():
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), n.conf.MaxRecordSize)

	for scanner.Scan() {
		record := bytes.TrimSpace(scanner.Bytes())
		if len(record) == 0 {
			continue
		}
		// The scanner reuses its buffer.
		record = append([]byte(nil), record...)

		select {
		case n.events <- event{kind: recordEvent, record: record}:
		case <-ctx.Done():
			return
		}
	}

	if serr := scanner.Err(); serr != nil {
		err = fmt.Errorf("%w: read: %w", ErrTransport, serr)
	}
}

/*******************************************************************************
Writer
*******************************************************************************/

func (n *Node[B]) writeOutput(ctx context.Context, out io.Writer) error {
	w := bufio.NewWriter(out)

	for {
		select {
		case m, ok := <-n.output:
			if !ok {
				return nil
			}
			record, err := message.Marshal(m)
			if err != nil {
				return err
			}
			n.logger.WithField("record", string(record)).Debug(">")

			record = append(record, '\n')
			if _, err := w.Write(record); err != nil {
				return fmt.Errorf("%w: write: %w", ErrTransport, err)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("%w: flush: %w", ErrTransport, err)
			}
			n.metrics.IncrCounter(MetricRecordsOut, 1)
		case <-ctx.Done():
			return nil
		}
	}
}

/*******************************************************************************
Driver
*******************************************************************************/

func (n *Node[B]) drive(ctx context.Context) error {
	defer close(n.output)
	defer n.controlTimer.Shutdown()

	for {
		var ev event
		select {
		case ev = <-n.events:
		case <-ctx.Done():
			return ctx.Err()
		}

		switch ev.kind {
		case closedEvent:
			if ev.err != nil {
				return ev.err
			}
			n.logger.Debug("Input closed")
			n.phase.Set(lifecycle.Draining)
			return nil
		case recordEvent:
			if err := n.processRecord(ctx, ev.record); err != nil {
				return err
			}
		case wakeUpEvent:
			if err := n.processWakeUp(ctx); err != nil {
				return err
			}
		}
	}
}

func (n *Node[B]) processRecord(ctx context.Context, record []byte) error {
	n.logger.WithField("record", string(record)).Debug("<")
	n.metrics.IncrCounter(MetricRecordsIn, 1)

	if n.state == nil {
		if err := n.handshake(ctx, record); err != nil {
			return err
		}
		return n.schedule(ctx)
	}

	req, err := n.codec.Decode(record)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := n.state.Handle(req)
	n.metrics.AddSample(MetricStateTime, float32(time.Since(start))/float32(time.Millisecond))
	if err != nil {
		return fmt.Errorf("%w: handle %s: %w", ErrState, req.Body.Type(), err)
	}

	return n.emitAndSchedule(ctx, out)
}

// processWakeUp ignores wake-ups that were superseded while queued.
func (n *Node[B]) processWakeUp(ctx context.Context) error {
	if n.state == nil || !n.wakeSet || time.Now().Before(n.wakeAt) {
		return nil
	}
	n.wakeSet = false
	n.metrics.IncrCounter(MetricWakeUps, 1)

	out, err := n.state.WakeUp()
	if err != nil {
		return fmt.Errorf("%w: wake up: %w", ErrState, err)
	}

	return n.emitAndSchedule(ctx, out)
}

func (n *Node[B]) handshake(ctx context.Context, record []byte) error {
	req, err := message.DecodeInit(record)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	reply, err := message.Reply(req.Generic(), message.Body(&message.InitOk{}))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	reply.Src = req.Body.NodeID

	logger := n.logger.WithField("node_id", req.Body.NodeID.String())
	logger.WithField("peers", len(req.Body.NodeIDs)).Info("Initialised")

	if err := n.emit(ctx, reply); err != nil {
		return err
	}

	state, err := n.newState(Env{
		ID:      req.Body.NodeID,
		Peers:   req.Body.NodeIDs,
		IDs:     message.NewSequence(),
		Logger:  logger,
		Metrics: n.metrics,
	})
	if err != nil {
		return fmt.Errorf("%w: create: %w", ErrState, err)
	}
	n.state = state
	n.phase.Set(lifecycle.Running)

	return nil
}

func (n *Node[B]) emitAndSchedule(ctx context.Context, out []message.Message[B]) error {
	for _, m := range out {
		if err := n.emit(ctx, m.Generic()); err != nil {
			return err
		}
	}
	return n.schedule(ctx)
}

func (n *Node[B]) emit(ctx context.Context, m message.Message[message.Body]) error {
	select {
	case n.output <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// schedule forwards the next wake-up wanted by the state to the timer, unless
// it is already the pending one.
func (n *Node[B]) schedule(ctx context.Context) error {
	at, ok := n.state.NextWakeUp()

	switch {
	case !ok && !n.wakeSet:
		return nil
	case !ok:
		n.wakeSet = false
		return n.controlTimer.Stop(ctx)
	case n.wakeSet && at.Equal(n.wakeAt):
		return nil
	}

	n.wakeAt, n.wakeSet = at, true
	return n.controlTimer.Reset(ctx, at)
}
