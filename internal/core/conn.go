package core

// Conn is an opaque handle to one client's bidirectional message channel.
// The transport layer owns the connection lifecycle; the core only delivers
// events to it and removes it from room registries. The core never closes
// a Conn on its own initiative.
type Conn interface {
	// ID uniquely identifies the connection within this process.
	ID() string
	// User is the sender identity established during the client handshake.
	User() string
	// Deliver enqueues an event for the client without blocking. An error
	// marks the connection undeliverable; the caller removes it from the
	// room registry and continues with the remaining connections.
	Deliver(ev *Event) error
}
