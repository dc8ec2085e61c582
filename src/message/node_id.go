package message

import (
	"bytes"
	"errors"
	"fmt"
)

// NodeIDSize is the maximum number of bytes in a NodeID.
const NodeIDSize = 8

var (
	// ErrNodeIDTooLong is returned when parsing more than NodeIDSize bytes.
	ErrNodeIDTooLong = errors.New("node id: longer than 8 bytes")
	// ErrNodeIDInvalidByte is returned when a byte is not an ASCII letter,
	// digit or punctuation character.
	ErrNodeIDInvalidByte = errors.New("node id: invalid byte")
)

// NodeID identifies a node or a client. It is both the identity of a process
// and its address on the wire. It is a fixed-size value so it can be copied and
// compared freely.
type NodeID struct {
	b [NodeIDSize]byte
}

// ParseNodeID validates s and returns the corresponding NodeID.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID
	if len(s) > NodeIDSize {
		return id, fmt.Errorf("%w: %q", ErrNodeIDTooLong, s)
	}
	for i := 0; i < len(s); i++ {
		if !validNodeIDByte(s[i]) {
			return id, fmt.Errorf("%w: %q at position %d", ErrNodeIDInvalidByte, s[i], i)
		}
		id.b[i] = s[i]
	}
	return id, nil
}

// MustParseNodeID is like ParseNodeID but panics on invalid input. It is
// meant for well-known addresses such as service nodes.
func MustParseNodeID(s string) NodeID {
	id, err := ParseNodeID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// ASCII letters, digits and punctuation, which is everything printable except
// the space.
func validNodeIDByte(c byte) bool {
	return c > ' ' && c <= '~'
}

// String returns the textual form of the id, without padding.
func (id NodeID) String() string {
	return string(bytes.TrimRight(id.b[:], "\x00"))
}

// IsZero reports whether id is the empty NodeID.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// Compare orders ids by their byte content.
func (id NodeID) Compare(other NodeID) int {
	return bytes.Compare(id.b[:], other.b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
