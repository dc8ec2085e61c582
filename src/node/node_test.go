package node

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node/lifecycle"
	"github.com/stretchr/testify/require"
)

type echo struct {
	message.Header
	Echo string `json:"echo"`
}

func (*echo) Type() string { return "echo" }

type echoOk struct {
	message.Header
	Echo string `json:"echo"`
}

func (*echoOk) Type() string { return "echo_ok" }

// schedule asks the test state to wake up after Delay milliseconds.
type schedule struct {
	message.Header
	Delay int `json:"delay"`
}

func (*schedule) Type() string { return "schedule" }

type woke struct {
	message.Header
	Count int `json:"count"`
}

func (*woke) Type() string { return "woke" }

type fail struct {
	message.Header
	Panic bool `json:"panic"`
}

func (*fail) Type() string { return "fail" }

var testCodec = message.NewCodec[message.Body](
	message.VariantOf[message.Body, echo](),
	message.VariantOf[message.Body, schedule](),
	message.VariantOf[message.Body, fail](),
)

type testState struct {
	env    Env
	sender *message.Sender[message.Body]
	client message.NodeID

	wakeAt  time.Time
	wakeSet bool
	wakes   int
}

func newTestState(env Env) (State[message.Body], error) {
	return &testState{
		env:    env,
		sender: message.NewSender[message.Body](env.ID, env.IDs),
	}, nil
}

func (s *testState) Handle(req message.Message[message.Body]) ([]message.Message[message.Body], error) {
	switch body := req.Body.(type) {
	case *echo:
		reply, err := s.sender.Reply(req, &echoOk{Echo: body.Echo})
		if err != nil {
			return nil, err
		}
		return []message.Message[message.Body]{reply}, nil
	case *schedule:
		s.client = req.Src
		s.wakeAt = time.Now().Add(time.Duration(body.Delay) * time.Millisecond)
		s.wakeSet = true
		return nil, nil
	case *fail:
		if body.Panic {
			panic("boom")
		}
		return nil, errors.New("boom")
	}
	return nil, fmt.Errorf("unexpected %s", req.Body.Type())
}

func (s *testState) WakeUp() ([]message.Message[message.Body], error) {
	s.wakes++
	s.wakeSet = false
	m, err := s.sender.Send(s.client, &woke{Count: s.wakes})
	if err != nil {
		return nil, err
	}
	return []message.Message[message.Body]{m}, nil
}

func (s *testState) NextWakeUp() (time.Time, bool) {
	return s.wakeAt, s.wakeSet
}

const initRecord = `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2","n3"]}}`

// harness drives a Node through pipes, the way Maelstrom drives a process.
type harness struct {
	t      *testing.T
	node   *Node[message.Body]
	in     *io.PipeWriter
	lines  chan string
	result chan error
}

func newHarness(t *testing.T) *harness {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := &harness{
		t:      t,
		in:     inW,
		lines:  make(chan string, 100),
		result: make(chan error, 1),
	}

	h.node = NewNode(TestConfig(t), testCodec, newTestState)
	go func() {
		err := h.node.Run(context.Background(), inR, outW)
		outW.Close()
		h.result <- err
	}()

	go func() {
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			h.lines <- scanner.Text()
		}
		close(h.lines)
	}()

	t.Cleanup(func() {
		inW.Close()
		inR.Close()
	})

	return h
}

func (h *harness) send(record string) {
	_, err := io.WriteString(h.in, record+"\n")
	require.NoError(h.t, err)
}

func (h *harness) expect(record string) {
	select {
	case line, ok := <-h.lines:
		require.True(h.t, ok, "output closed, expected %s", record)
		require.Equal(h.t, record, line)
	case <-time.After(5 * time.Second):
		h.t.Fatalf("timeout waiting for %s", record)
	}
}

func (h *harness) wait() error {
	select {
	case err := <-h.result:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("timeout waiting for the node to stop")
	}
	return nil
}

func TestHandshakeAndEcho(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, lifecycle.AwaitingInit, h.node.Phase())

	h.send(initRecord)
	h.expect(`{"src":"n1","dest":"c1","body":{"in_reply_to":1,"type":"init_ok"}}`)
	require.Eventually(t, func() bool {
		return h.node.Phase() == lifecycle.Running
	}, time.Second, 10*time.Millisecond)

	h.send(`{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":2,"echo":"Please echo 35"}}`)
	h.expect(`{"src":"n1","dest":"c1","body":{"echo":"Please echo 35","in_reply_to":2,"msg_id":0,"type":"echo_ok"}}`)

	h.send(`{"src":"c2","dest":"n1","body":{"type":"echo","msg_id":2,"echo":"again"}}`)
	h.expect(`{"src":"n1","dest":"c2","body":{"echo":"again","in_reply_to":2,"msg_id":1,"type":"echo_ok"}}`)

	require.NoError(t, h.in.Close())
	require.NoError(t, h.wait())
	require.Equal(t, lifecycle.Shutdown, h.node.Phase())

	_, ok := <-h.lines
	require.False(t, ok, "no output after the last reply")
}

func TestInitOkFromAssignedID(t *testing.T) {
	h := newHarness(t)

	// The envelope destination is not what names the node.
	h.send(`{"src":"c1","dest":"n9","body":{"type":"init","msg_id":7,"node_id":"n2","node_ids":["n1","n2"]}}`)
	h.expect(`{"src":"n2","dest":"c1","body":{"in_reply_to":7,"type":"init_ok"}}`)

	require.NoError(t, h.in.Close())
	require.NoError(t, h.wait())
}

func TestEOFDrainsQueuedRecords(t *testing.T) {
	var input strings.Builder
	input.WriteString(initRecord + "\n\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&input, `{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":%d,"echo":"%d"}}`+"\n", i+2, i)
	}

	var out bytes.Buffer
	node := NewNode(TestConfig(t), testCodec, newTestState)
	require.NoError(t, node.Run(context.Background(), strings.NewReader(input.String()), &out))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 51)
	require.Contains(t, lines[0], `"type":"init_ok"`)
	for i, line := range lines[1:] {
		require.Contains(t, line, fmt.Sprintf(`"in_reply_to":%d,`, i+2))
	}
}

func TestEmptyInput(t *testing.T) {
	var out bytes.Buffer
	node := NewNode(TestConfig(t), testCodec, newTestState)
	require.NoError(t, node.Run(context.Background(), strings.NewReader(""), &out))
	require.Empty(t, out.String())
}

func TestFirstRecordMustBeInit(t *testing.T) {
	cases := map[string]string{
		"echo":      `{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":1,"echo":"x"}}`,
		"garbage":   `hello`,
		"no msg_id": `{"src":"c1","dest":"n1","body":{"type":"init","node_id":"n1","node_ids":["n1"]}}`,
	}
	for name, record := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			node := NewNode(TestConfig(t), testCodec, newTestState)
			err := node.Run(context.Background(), strings.NewReader(record+"\n"), &out)
			require.ErrorIs(t, err, ErrHandshake)
			require.Empty(t, out.String())
		})
	}
}

func TestUnknownTypeIsFatal(t *testing.T) {
	h := newHarness(t)
	h.send(initRecord)
	h.expect(`{"src":"n1","dest":"c1","body":{"in_reply_to":1,"type":"init_ok"}}`)

	h.send(`{"src":"c1","dest":"n1","body":{"type":"topology","msg_id":2}}`)
	require.ErrorIs(t, h.wait(), message.ErrProtocol)
}

func TestStateErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.send(initRecord)
	h.expect(`{"src":"n1","dest":"c1","body":{"in_reply_to":1,"type":"init_ok"}}`)

	h.send(`{"src":"c1","dest":"n1","body":{"type":"fail","msg_id":2}}`)
	require.ErrorIs(t, h.wait(), ErrState)
}

func TestStatePanicIsFatal(t *testing.T) {
	h := newHarness(t)
	h.send(initRecord)
	h.expect(`{"src":"n1","dest":"c1","body":{"in_reply_to":1,"type":"init_ok"}}`)

	h.send(`{"src":"c1","dest":"n1","body":{"type":"fail","msg_id":2,"panic":true}}`)
	require.ErrorIs(t, h.wait(), ErrWorkerPanic)
}

func TestWakeUpSupersedes(t *testing.T) {
	h := newHarness(t)
	h.send(initRecord)
	h.expect(`{"src":"n1","dest":"c1","body":{"in_reply_to":1,"type":"init_ok"}}`)

	start := time.Now()
	h.send(`{"src":"c1","dest":"n1","body":{"type":"schedule","msg_id":2,"delay":50}}`)
	h.send(`{"src":"c1","dest":"n1","body":{"type":"schedule","msg_id":3,"delay":200}}`)

	h.expect(`{"src":"n1","dest":"c1","body":{"count":1,"msg_id":0,"type":"woke"}}`)
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	// The state did not ask again, so nothing else comes.
	select {
	case line := <-h.lines:
		t.Fatalf("unexpected output %s", line)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, h.in.Close())
	require.NoError(t, h.wait())
}

func TestWakeUpInThePast(t *testing.T) {
	h := newHarness(t)
	h.send(initRecord)
	h.expect(`{"src":"n1","dest":"c1","body":{"in_reply_to":1,"type":"init_ok"}}`)

	h.send(`{"src":"c1","dest":"n1","body":{"type":"schedule","msg_id":2,"delay":-1000}}`)
	h.expect(`{"src":"n1","dest":"c1","body":{"count":1,"msg_id":0,"type":"woke"}}`)

	require.NoError(t, h.in.Close())
	require.NoError(t, h.wait())
}
