package message

// Init is the first message every node receives. It carries the id of the
// node and the ids of every node in the cluster, including itself.
type Init struct {
	Header
	NodeID  NodeID   `json:"node_id"`
	NodeIDs []NodeID `json:"node_ids"`
}

// Type implements Body.
func (*Init) Type() string { return "init" }

// InitOk acknowledges Init.
type InitOk struct {
	Header
}

// Type implements Body.
func (*InitOk) Type() string { return "init_ok" }

// Well-known error codes of the standard error body.
const (
	ErrorCodeTimeout                = 0
	ErrorCodeNodeNotFound           = 1
	ErrorCodeNotSupported           = 10
	ErrorCodeTemporarilyUnavailable = 11
	ErrorCodeMalformedRequest       = 12
	ErrorCodeCrash                  = 13
	ErrorCodeAbort                  = 14
	ErrorCodeKeyDoesNotExist        = 20
	ErrorCodeKeyAlreadyExists       = 21
	ErrorCodePreconditionFailed     = 22
	ErrorCodeTxnConflict            = 30
)

// Error is the standard error body. Protocols include it among their variants
// when they talk to services that may answer with errors; the runtime never
// sends it on its own.
type Error struct {
	Header
	Code int    `json:"code"`
	Text string `json:"text,omitempty"`
}

// Type implements Body.
func (*Error) Type() string { return "error" }

// Definite reports whether the request that caused the error certainly did not
// take effect.
func (e *Error) Definite() bool {
	switch e.Code {
	case ErrorCodeTimeout, ErrorCodeCrash:
		return false
	}
	return true
}

var initCodec = NewCodec[Body](VariantOf[Body, Init]())

// DecodeInit decodes the handshake record.
func DecodeInit(line []byte) (Message[*Init], error) {
	msg, err := initCodec.Decode(line)
	if err != nil {
		return Message[*Init]{}, err
	}
	// The only registered variant is Init.
	return Message[*Init]{Src: msg.Src, Dest: msg.Dest, Body: msg.Body.(*Init)}, nil
}
