package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/history"
)

// Ack confirms acceptance of a submitted message. Degraded means the
// message is durably recorded but the backplane publish failed, so live
// subscribers miss it until they rejoin and replay history.
type Ack struct {
	Room     string
	RecordID int64
	Degraded bool
}

// Broadcaster is the orchestration entry point for inbound client
// messages. Persistence strictly precedes fanout: a message that failed to
// append is never published, and no acknowledgment is issued without
// durability.
type Broadcaster struct {
	reg      *Registry
	store    history.Store
	rooms    *Manager
	log      zerolog.Logger
	maxBytes int
}

// NewBroadcaster constructs a broadcaster. maxBytes bounds message content;
// zero or negative means no bound.
func NewBroadcaster(reg *Registry, store history.Store, rooms *Manager, logger zerolog.Logger, maxBytes int) *Broadcaster {
	return &Broadcaster{reg: reg, store: store, rooms: rooms, log: logger, maxBytes: maxBytes}
}

// Submit validates, persists, and publishes one message from conn.
func (b *Broadcaster) Submit(ctx context.Context, room string, conn Conn, content string) (*Ack, error) {
	if strings.TrimSpace(content) == "" {
		return nil, coreError(ErrMalformedMessage, ErrCodeMalformedMessage, "empty message content")
	}
	if b.maxBytes > 0 && len(content) > b.maxBytes {
		return nil, coreError(ErrMalformedMessage, ErrCodeMalformedMessage, "message content too large")
	}
	if !b.reg.Contains(room, conn) {
		return nil, coreError(ErrNotAMember, ErrCodeNotAMember, "not a member of "+room)
	}

	msg := &Message{
		Room:      room,
		Sender:    conn.User(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	id, err := b.store.Append(ctx, room, history.Record{
		Room:      msg.Room,
		Sender:    msg.Sender,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return nil, coreError(err, ErrCodeStorageFailure, "append message: "+err.Error())
	}
	msg.ID = id

	bridge := b.rooms.bridgeFor(room)
	if bridge == nil {
		// Membership raced with a leave; the write is durable, so report
		// degraded delivery rather than failing the sender.
		b.log.Warn().Str("room", room).Int64("record_id", id).Msg("no live bridge after append")
		return &Ack{Room: room, RecordID: id, Degraded: true}, nil
	}
	if err := bridge.Publish(ctx, msg); err != nil {
		b.log.Warn().Err(err).Str("room", room).Int64("record_id", id).Msg("publish failed after durable append")
		return &Ack{Room: room, RecordID: id, Degraded: true}, nil
	}
	return &Ack{Room: room, RecordID: id}, nil
}
