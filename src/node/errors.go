package node

import "errors"

var (
	// ErrHandshake is returned when the first record is not a valid init.
	ErrHandshake = errors.New("node: handshake failed")
	// ErrTransport is returned when stdin or stdout fails.
	ErrTransport = errors.New("node: transport failure")
	// ErrState is returned when the State rejects a message or a wake-up.
	ErrState = errors.New("node: state failure")
	// ErrWorkerPanic is returned when one of the workers panics.
	ErrWorkerPanic = errors.New("node: worker panicked")
)
