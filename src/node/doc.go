// Package node runs a Maelstrom node over a pair of byte streams.
//
// A Node is made of four workers connected by bounded channels:
//
//	reader  --+
//	          +--> events --> driver --> output --> writer
//	timer   --+                 |
//	  ^                         |
//	  +------- next wake-up ----+
//
// The reader splits the input into lines and forwards them unparsed. The
// ControlTimer turns the time last requested by the driver into a single
// wake-up event. Both feed the same queue, so the driver sees messages and
// wake-ups in one total order. The driver is the only goroutine touching the
// State, and the writer is the only one touching the output.
//
// Handshake
//
// The first record must be an init message. The driver answers it with
// init_ok, addressed from the node id the init assigned, and only then builds
// the State with the given Constructor.
//
// Shutdown
//
// When the input reaches EOF, the driver processes what is still queued, the
// writer flushes the remaining replies and Run returns nil. Any other failure
// stops every worker and is returned by Run: the process is expected to exit.
package node
