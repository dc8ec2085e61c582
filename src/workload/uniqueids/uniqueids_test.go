package uniqueids

import (
	"fmt"
	"math"
	"testing"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T, id string) *State {
	self := message.MustParseNodeID(id)
	state, err := New(node.Env{ID: self, IDs: message.NewSequence()})
	require.NoError(t, err)
	return state.(*State)
}

func generate(t *testing.T, s *State, msgID int) string {
	req, err := Codec.Decode([]byte(fmt.Sprintf(
		`{"src":"c1","dest":"%s","body":{"type":"generate","msg_id":%d}}`, s.self, msgID)))
	require.NoError(t, err)

	out, err := s.Handle(req)
	require.NoError(t, err)
	require.Len(t, out, 1)

	line, err := message.Marshal(out[0])
	require.NoError(t, err)
	return string(line)
}

func TestGenerate(t *testing.T) {
	s := newState(t, "n2")

	require.Equal(t,
		`{"src":"n2","dest":"c1","body":{"id":["n2",0],"in_reply_to":7,"msg_id":0,"type":"generate_ok"}}`,
		generate(t, s, 7))
	require.Equal(t,
		`{"src":"n2","dest":"c1","body":{"id":["n2",1],"in_reply_to":8,"msg_id":1,"type":"generate_ok"}}`,
		generate(t, s, 8))
}

func TestGenerateOkCarriesID(t *testing.T) {
	s := newState(t, "n3")
	req, err := Codec.Decode([]byte(`{"src":"c1","dest":"n3","body":{"type":"generate","msg_id":1}}`))
	require.NoError(t, err)

	out, err := s.Handle(req)
	require.NoError(t, err)
	require.Len(t, out, 1)

	body, ok := out[0].Body.(*GenerateOk)
	require.True(t, ok, "reply should be *GenerateOk, not %T", out[0].Body)
	require.Equal(t, UniqueID{Node: message.MustParseNodeID("n3"), Counter: 0}, body.UniqueID)
	replyTo, ok := body.ReplyTo()
	require.True(t, ok)
	require.Equal(t, message.MessageID(1), replyTo)
}

func TestIDsAreUniqueAcrossNodes(t *testing.T) {
	seen := make(map[UniqueID]bool)
	for _, id := range []string{"n1", "n2", "n3"} {
		s := newState(t, id)
		for i := 0; i < 100; i++ {
			uid, err := s.nextID()
			require.NoError(t, err)
			if seen[uid] {
				t.Fatalf("%v generated twice", uid)
			}
			seen[uid] = true
		}
	}
}

func TestExhausted(t *testing.T) {
	s := newState(t, "n1")
	s.next = math.MaxUint64

	uid, err := s.nextID()
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), uid.Counter)

	_, err = s.nextID()
	require.ErrorIs(t, err, ErrExhausted)
}
