package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to the chat core.
type WSHandler struct {
	rooms      *core.Manager
	bcast      *core.Broadcaster
	sendBuffer int
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(rooms *core.Manager, bcast *core.Broadcaster, sendBuffer int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{rooms: rooms, bcast: bcast, sendBuffer: sendBuffer, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := newWSClient(uuid.NewString(), h.sendBuffer)
	defer h.rooms.LeaveAll(context.Background(), client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}
		if err := h.handleInbound(ctx, conn, client, inbound); err != nil {
			return err
		}
	}
}

// handleInbound serves one client request. Domain errors go back to this
// one client; only transport failures end the connection.
func (h *WSHandler) handleInbound(ctx context.Context, conn *websocket.Conn, client *wsClient, inbound proto.Inbound) error {
	switch inbound.Type {
	case proto.InboundTypeHello:
		var hello proto.HelloData
		if err := json.Unmarshal(inbound.Data, &hello); err != nil || hello.User == "" {
			return h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeMalformedMessage, Msg: "hello requires a user"})
		}
		client.setUser(hello.User)
		return nil

	case proto.InboundTypeCreate:
		room, perr := roomFromInbound(inbound)
		if perr != nil {
			return h.writeError(ctx, conn, perr)
		}
		if err := h.rooms.Create(ctx, room); err != nil {
			return h.writeError(ctx, conn, protoError(err))
		}
		return wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeAck,
			Event: proto.InboundTypeCreate,
			Data:  proto.RoomData{Room: room},
		})

	case proto.InboundTypeJoin:
		if perr := h.requireHello(client); perr != nil {
			return h.writeError(ctx, conn, perr)
		}
		room, perr := roomFromInbound(inbound)
		if perr != nil {
			return h.writeError(ctx, conn, perr)
		}
		// The history replay and any gated live tail arrive through the
		// client's event queue, ahead of all live messages.
		if _, err := h.rooms.Join(ctx, room, client); err != nil {
			return h.writeError(ctx, conn, protoError(err))
		}
		return nil

	case proto.InboundTypeLeave:
		room, perr := roomFromInbound(inbound)
		if perr != nil {
			return h.writeError(ctx, conn, perr)
		}
		if err := h.rooms.Leave(ctx, room, client); err != nil {
			return h.writeError(ctx, conn, protoError(err))
		}
		return wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeAck,
			Event: proto.InboundTypeLeave,
			Data:  proto.RoomData{Room: room},
		})

	case proto.InboundTypeMsg:
		if perr := h.requireHello(client); perr != nil {
			return h.writeError(ctx, conn, perr)
		}
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil || msg.Room == "" {
			return h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeMalformedMessage, Msg: "msg requires a room"})
		}
		ack, err := h.bcast.Submit(ctx, msg.Room, client, msg.Content)
		if err != nil {
			return h.writeError(ctx, conn, protoError(err))
		}
		return wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeAck,
			Event: proto.InboundTypeMsg,
			Data:  proto.AckData{Room: ack.Room, ID: ack.RecordID, Degraded: ack.Degraded},
		})

	default:
		return h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeMalformedMessage, Msg: "unknown message type"})
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) error {
	for {
		select {
		case event := <-client.events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, perr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: perr})
}

func (h *WSHandler) requireHello(client *wsClient) *proto.Error {
	if client.User() == "" {
		return &proto.Error{Code: core.ErrCodeMalformedMessage, Msg: "hello required before this request"}
	}
	return nil
}

func roomFromInbound(inbound proto.Inbound) (string, *proto.Error) {
	var data proto.RoomData
	if err := json.Unmarshal(inbound.Data, &data); err != nil || data.Room == "" {
		return "", &proto.Error{Code: core.ErrCodeMalformedMessage, Msg: "room is required"}
	}
	return data.Room, nil
}
