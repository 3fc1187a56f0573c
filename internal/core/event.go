package core

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventRoomMessage notifies a connection about a chat message in a room.
	EventRoomMessage EventKind = iota
	// EventHistory delivers message history to a connection upon joining a room.
	EventHistory
)

// Event is sent to connections to describe what happened in a room.
type Event struct {
	Kind     EventKind
	Room     string
	Message  Message
	Messages []Message // For EventHistory
	Token    string    // For EventHistory: the subscription token
}
