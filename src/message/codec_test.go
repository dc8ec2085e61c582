package message

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var echoCodec = NewCodec[Body](
	VariantOf[Body, echo](),
	VariantOf[Body, echoOk](),
)

func TestDecodeInit(t *testing.T) {
	line := []byte(`{"src":"c1","dest":"n3","body":{"type":"init","msg_id":1,"node_id":"n3","node_ids":["n1","n2","n3"]}}`)

	msg, err := DecodeInit(line)
	require.NoError(t, err)
	require.Equal(t, "c1", msg.Src.String())
	require.Equal(t, "n3", msg.Dest.String())
	require.Equal(t, "n3", msg.Body.NodeID.String())

	ids := make([]string, len(msg.Body.NodeIDs))
	for i, id := range msg.Body.NodeIDs {
		ids[i] = id.String()
	}
	require.Equal(t, []string{"n1", "n2", "n3"}, ids)

	msgID, ok := msg.Body.ID()
	require.True(t, ok)
	require.Equal(t, MessageID(1), msgID)
}

func TestDecodeInitFailures(t *testing.T) {
	cases := map[string]string{
		"wrong type":     `{"src":"c1","dest":"n3","body":{"type":"no-init","msg_id":1,"node_id":"n3","node_ids":["n1"]}}`,
		"missing type":   `{"src":"c1","dest":"n3","body":{"msg_id":1,"node_id":"n3","node_ids":["n1"]}}`,
		"missing body":   `{"src":"c1","dest":"n3"}`,
		"bad node id":    `{"src":"c1","dest":"n3","body":{"type":"init","msg_id":1,"node_id":"way-too-long","node_ids":[]}}`,
		"type mismatch":  `{"src":"c1","dest":"n3","body":{"type":"init","msg_id":"one","node_id":"n3","node_ids":[]}}`,
		"not json":       `init n3`,
		"truncated json": `{"src":"c1","dest":"n3","body":{"type":"init"`,
		"null src":       `{"src":null,"dest":"n3","body":{"type":"init","msg_id":1,"node_id":"n3","node_ids":["n3"]}}`,
		"missing dest":   `{"src":"c1","body":{"type":"init","msg_id":1,"node_id":"n3","node_ids":["n3"]}}`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeInit([]byte(line))
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestDecodeCustomBody(t *testing.T) {
	line := []byte(`{"src":"c1","dest":"n3","body":{"type":"echo","msg_id":1,"echo":"Please echo 35"}}`)

	msg, err := echoCodec.Decode(line)
	require.NoError(t, err)

	body, ok := msg.Body.(*echo)
	require.True(t, ok, "body should be *echo, not %T", msg.Body)
	require.Equal(t, "Please echo 35", body.Echo)

	_, hasReplyTo := body.ReplyTo()
	require.False(t, hasReplyTo)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := echoCodec.Decode([]byte(`{"src":"c1","dest":"n3","body":{"type":"read","msg_id":1}}`))
	require.ErrorIs(t, err, ErrProtocol)
	require.Contains(t, err.Error(), `"read"`)
}

func TestMarshalShape(t *testing.T) {
	body := &echoOk{Echo: "x"}
	body.SetID(4)
	body.SetReplyTo(1)
	msg := New[Body](MustParseNodeID("n1"), MustParseNodeID("c1"), body)

	line, err := Marshal(msg)
	require.NoError(t, err)
	require.Equal(t,
		`{"src":"n1","dest":"c1","body":{"echo":"x","in_reply_to":1,"msg_id":4,"type":"echo_ok"}}`,
		string(line))
}

func TestMarshalOmitsMissingCorrelation(t *testing.T) {
	msg := New[Body](MustParseNodeID("n1"), MustParseNodeID("c1"), &InitOk{})

	line, err := Marshal(msg)
	require.NoError(t, err)
	require.Equal(t, `{"src":"n1","dest":"c1","body":{"type":"init_ok"}}`, string(line))
}

func TestEncodeRoundTrip(t *testing.T) {
	body := &echo{Echo: "multi\nline \"quoted\" text"}
	body.SetID(12)
	msg := New[Body](MustParseNodeID("c2"), MustParseNodeID("n2"), body)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, msg))
	require.True(t, strings.HasSuffix(buf.String(), "\n"))
	require.Equal(t, 1, strings.Count(buf.String(), "\n"), "a record must fit on one line")

	decoded, err := echoCodec.Decode(bytes.TrimRight(buf.Bytes(), "\n"))
	require.NoError(t, err)
	require.Equal(t, msg.Src, decoded.Src)
	require.Equal(t, msg.Dest, decoded.Dest)
	require.Equal(t, body, decoded.Body)
}

func TestMarshalNilBody(t *testing.T) {
	_, err := Marshal(Message[Body]{})
	require.Error(t, err)
}

func TestErrorBody(t *testing.T) {
	codec := NewCodec[Body](VariantOf[Body, Error]())
	msg, err := codec.Decode([]byte(`{"src":"seq-kv","dest":"n1","body":{"type":"error","in_reply_to":3,"code":22,"text":"expected 1"}}`))
	require.NoError(t, err)

	body := msg.Body.(*Error)
	require.Equal(t, ErrorCodePreconditionFailed, body.Code)
	require.True(t, body.Definite())
	require.Equal(t, "seq-kv", msg.Src.String())

	require.False(t, (&Error{Code: ErrorCodeTimeout}).Definite())
}

func TestDecodeRequiresEnvelope(t *testing.T) {
	cases := map[string]string{
		"null src":     `{"src":null,"dest":"n1","body":{"type":"echo_ok","in_reply_to":1}}`,
		"missing src":  `{"dest":"n1","body":{"type":"echo_ok","in_reply_to":1}}`,
		"null dest":    `{"src":"n2","dest":null,"body":{"type":"echo_ok","in_reply_to":1}}`,
		"missing dest": `{"src":"n2","body":{"type":"echo_ok","in_reply_to":1}}`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := echoCodec.Decode([]byte(line))
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestMarshalEnvelopeOrder(t *testing.T) {
	body := &echo{Echo: "z"}
	body.SetID(0)
	msg := New[Body](MustParseNodeID("z9"), MustParseNodeID("a1"), body)

	line, err := Marshal(msg)
	require.NoError(t, err)
	if !strings.HasPrefix(string(line), `{"src":"z9","dest":"a1","body":{`) {
		t.Fatalf("record should start with src, dest and body: %s", line)
	}
}
