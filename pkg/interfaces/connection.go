package interfaces

import "codeblocks/pkg/types"

// Connection represents a real-time client connection
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Thread-safety requirement documented in interface
	// to ensure all implementations use single-writer pattern to prevent races
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetConnectionID returns the server-assigned connection identifier
	GetConnectionID() string

	// GetParticipantID returns the participant handle this connection speaks for
	GetParticipantID() string
}

// Subscriber receives content snapshots for the exercises it subscribed to
// ARCHITECTURAL DISCOVERY: The hub only knows subscribers by this contract,
// so rooms can be tested without real network connections
type Subscriber interface {
	// SubscriberID identifies the subscriber; a publish is never echoed back
	// to the subscriber whose ID matches the sender
	SubscriberID() string

	// Deliver hands one update to the subscriber without blocking the room
	Deliver(update types.Update) error
}
