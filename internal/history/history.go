// Package history defines the durable, append-only per-room message log.
// The store is the sole owner of durable message order: appends for one
// room serialize into a single total order, and a read started after an
// append returns is guaranteed to observe that record.
package history

import (
	"context"
	"errors"
	"regexp"
	"time"
)

var (
	// ErrRoomExists is returned by CreateRoom for a room that already exists.
	ErrRoomExists = errors.New("room already exists")
	// ErrInvalidRoom is returned for room identifiers that are unsafe as
	// storage keys (path separators, dots, control characters).
	ErrInvalidRoom = errors.New("invalid room name")
)

var roomNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidRoomName reports whether room is safe to use as a storage key and
// backplane channel component.
func ValidRoomName(room string) bool {
	return roomNameRe.MatchString(room)
}

// Record is the durable representation of a message once appended to a
// room's log. Fields round-trip losslessly across backends.
type Record struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the per-room append-only message log.
type Store interface {
	// CreateRoom establishes the room's durable existence. It fails with
	// ErrRoomExists if the room was already created and ErrInvalidRoom for
	// unsafe identifiers.
	CreateRoom(ctx context.Context, room string) error

	// RoomExists reports whether the room was ever created.
	RoomExists(ctx context.Context, room string) (bool, error)

	// Append adds rec to the room's log and returns its record ID.
	// Concurrent appends for the same room serialize into one total order.
	Append(ctx context.Context, room string, rec Record) (int64, error)

	// ReadAll returns the room's full log in write order. A room with no
	// stored records yields an empty slice, not an error.
	ReadAll(ctx context.Context, room string) ([]Record, error)

	// Close releases the underlying medium.
	Close() error
}
