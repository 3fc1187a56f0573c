package core

import "time"

// Message is the domain model for a chat message. It is immutable once
// produced by the broadcaster; nothing downstream may reorder or rewrite it.
type Message struct {
	ID        int64
	Room      string
	Sender    string
	Content   string
	CreatedAt time.Time
}
