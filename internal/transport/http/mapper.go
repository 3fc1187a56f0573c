package http

import (
	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/proto"
)

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessage,
			Data:  eventMessage(event.Message),
		}
	case core.EventHistory:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, eventMessage(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameHistory,
			Data: proto.EventHistory{
				Room:     event.Room,
				Token:    event.Token,
				Messages: messages,
			},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventMessage(msg core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:      msg.ID,
		Room:    msg.Room,
		Sender:  msg.Sender,
		Content: msg.Content,
		TS:      msg.CreatedAt.UnixNano(),
	}
}

func protoError(err error) *proto.Error {
	if code := core.ErrorCode(err); code != "" {
		return &proto.Error{Code: code, Msg: err.Error()}
	}
	return &proto.Error{Code: "internal", Msg: err.Error()}
}
