package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello  = "hello"
	InboundTypeCreate = "create"
	InboundTypeJoin   = "join"
	InboundTypeLeave  = "leave"
	InboundTypeMsg    = "msg"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"

	EventNameMessage = "message"
	EventNameHistory = "history"
)

// HelloData is sent by the client to introduce itself. The identity is
// assumed to be authenticated upstream.
type HelloData struct {
	User     string `json:"user"`
	Protocol int    `json:"protocol,omitempty"`
}

// RoomData names the target room for create, join, and leave requests.
type RoomData struct {
	Room string `json:"room"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	Room    string `json:"room"`
	Content string `json:"content"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage is one delivered chat message.
type EventMessage struct {
	ID      int64  `json:"id,omitempty"`
	Room    string `json:"room"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

// EventHistory replays a room's history to a joining client, ahead of any
// live message it will receive.
type EventHistory struct {
	Room     string         `json:"room"`
	Token    string         `json:"token"`
	Messages []EventMessage `json:"messages"`
}

// AckData confirms a submitted message. Degraded means the message is
// durably recorded but live fanout failed.
type AckData struct {
	Room     string `json:"room"`
	ID       int64  `json:"id"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// WireMessage is the backplane payload for one room channel. It round-trips
// every message field exactly; timestamps travel as Unix nanoseconds.
type WireMessage struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// EncodeWire serializes a message for the backplane.
func EncodeWire(id int64, room, sender, content string, createdAt time.Time) ([]byte, error) {
	return json.Marshal(WireMessage{
		ID:        id,
		Room:      room,
		Sender:    sender,
		Content:   content,
		CreatedAt: createdAt.UnixNano(),
	})
}

// DecodeWire parses a backplane payload.
func DecodeWire(payload []byte) (WireMessage, error) {
	var wm WireMessage
	err := json.Unmarshal(payload, &wm)
	return wm, err
}

// Time returns the message creation time.
func (wm WireMessage) Time() time.Time {
	return time.Unix(0, wm.CreatedAt).UTC()
}
