package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/ugorji/go/codec"
)

// ErrProtocol is wrapped by every decoding failure: malformed records, unknown
// or missing type discriminators and payload type mismatches.
var ErrProtocol = errors.New("message: protocol violation")

var jsonHandle = newJSONHandle()

func newJSONHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return jh
}

// Variant describes how to decode one body type of a protocol.
type Variant[B Body] struct {
	typ    string
	decode func(line []byte) (Message[B], error)
}

// VariantOf registers the body type *T as a variant of the protocol body B.
// *T must implement B.
func VariantOf[B Body, T any, P interface {
	*T
	Body
}]() Variant[B] {
	return Variant[B]{
		typ: P(new(T)).Type(),
		decode: func(line []byte) (Message[B], error) {
			var wire struct {
				Src  *NodeID `json:"src"`
				Dest *NodeID `json:"dest"`
				Body P       `json:"body"`
			}
			if err := codec.NewDecoderBytes(line, jsonHandle).Decode(&wire); err != nil {
				return Message[B]{}, fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			if wire.Src == nil || wire.Dest == nil {
				return Message[B]{}, fmt.Errorf("%w: missing src or dest", ErrProtocol)
			}
			if wire.Body == nil {
				return Message[B]{}, fmt.Errorf("%w: missing body", ErrProtocol)
			}
			body, ok := any(wire.Body).(B)
			if !ok {
				return Message[B]{}, fmt.Errorf("%w: %T is not a variant of %s",
					ErrProtocol, wire.Body, reflect.TypeOf((*B)(nil)).Elem())
			}
			return Message[B]{Src: *wire.Src, Dest: *wire.Dest, Body: body}, nil
		},
	}
}

// Codec decodes the records of one protocol. The set of variants is closed:
// a record whose type is not registered is a protocol violation.
type Codec[B Body] struct {
	variants map[string]Variant[B]
}

// NewCodec returns a Codec knowing the given variants.
func NewCodec[B Body](variants ...Variant[B]) *Codec[B] {
	c := &Codec[B]{variants: make(map[string]Variant[B], len(variants))}
	for _, v := range variants {
		c.variants[v.typ] = v
	}
	return c
}

// Decode parses one record.
func (c *Codec[B]) Decode(line []byte) (Message[B], error) {
	var probe struct {
		Body struct {
			Type *string `json:"type"`
		} `json:"body"`
	}
	if err := codec.NewDecoderBytes(line, jsonHandle).Decode(&probe); err != nil {
		return Message[B]{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if probe.Body.Type == nil {
		return Message[B]{}, fmt.Errorf("%w: missing body type", ErrProtocol)
	}
	v, ok := c.variants[*probe.Body.Type]
	if !ok {
		return Message[B]{}, fmt.Errorf("%w: unknown body type %q", ErrProtocol, *probe.Body.Type)
	}
	return v.decode(line)
}

// Marshal returns the single-line wire form of m, without line terminator.
func Marshal(m Message[Body]) ([]byte, error) {
	if m.Body == nil {
		return nil, errors.New("message: nil body")
	}

	// Flatten the body so the discriminator sits next to the payload fields.
	var payload []byte
	if err := codec.NewEncoderBytes(&payload, jsonHandle).Encode(m.Body); err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if err := codec.NewDecoderBytes(payload, jsonHandle).Decode(&fields); err != nil {
		return nil, err
	}
	fields["type"] = m.Body.Type()
	var body []byte
	if err := codec.NewEncoderBytes(&body, jsonHandle).Encode(fields); err != nil {
		return nil, err
	}

	// The encoder sorts struct fields too, so the envelope is assembled by
	// hand to keep src, dest and body in that order.
	var src, dest []byte
	if err := codec.NewEncoderBytes(&src, jsonHandle).Encode(m.Src); err != nil {
		return nil, err
	}
	if err := codec.NewEncoderBytes(&dest, jsonHandle).Encode(m.Dest); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(src)+len(dest)+len(body)+24)
	out = append(out, `{"src":`...)
	out = append(out, src...)
	out = append(out, `,"dest":`...)
	out = append(out, dest...)
	out = append(out, `,"body":`...)
	out = append(out, body...)
	out = append(out, '}')

	if bytes.IndexByte(out, '\n') >= 0 {
		return nil, fmt.Errorf("message: encoded record spans several lines")
	}
	return out, nil
}

// Encode writes m to w as one line.
func Encode(w io.Writer, m Message[Body]) error {
	line, err := Marshal(m)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = w.Write(line)
	return err
}
