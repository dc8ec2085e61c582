// Package lifecycle tracks the phase of a running node.
package lifecycle

import "sync/atomic"

// Phase captures the phase of a node: AwaitingInit, Running, Draining or
// Shutdown.
type Phase uint32

const (
	// AwaitingInit is the phase in which the node has not received its init
	// message yet. Nothing but init is accepted.
	AwaitingInit Phase = iota

	// Running is the phase in which the node hands every message and wake-up
	// to its state machine.
	Running

	// Draining is the phase in which the input is closed and the node flushes
	// the replies already produced.
	Draining

	// Shutdown is the phase in which every worker of the node has stopped.
	Shutdown
)

// String returns the string representation of a Phase
func (p Phase) String() string {
	switch p {
	case AwaitingInit:
		return "AwaitingInit"
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Manager wraps a Phase with get and set methods safe for concurrent use.
type Manager struct {
	phase uint32
}

// Get returns the current phase.
func (m *Manager) Get() Phase {
	return Phase(atomic.LoadUint32(&m.phase))
}

// Set sets the phase.
func (m *Manager) Set(p Phase) {
	atomic.StoreUint32(&m.phase, uint32(p))
}
