package http

import (
	"encoding/json"

	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

// inboundToCommand maps a client frame to a hub command. Only user-online
// answers with protocol errors; malformed or unknown frames yield nothing.
func (h *WSHandler) inboundToCommand(client *core.Client, inbound proto.Inbound) (*core.Command, *core.CoreError) {
	switch inbound.Type {
	case proto.InboundTypeUserOnline:
		var online proto.UserOnlineData
		if err := json.Unmarshal(inbound.Data, &online); err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "invalid user-online payload")
		}
		if online.Protocol != 0 && online.Protocol != proto.ProtocolVersion {
			return nil, core.NewError(core.ErrCodeUnsupportedVersion, "unsupported protocol version")
		}
		userID, protoErr := h.authenticate(online)
		if protoErr != nil {
			return nil, protoErr
		}
		return &core.Command{Kind: core.CommandOnline, UserID: userID}, nil
	case proto.InboundTypeSendMessage:
		var send proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("malformed send-message ignored")
			return nil, nil
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Send: core.SendPayload{
				SenderID:   send.SenderID,
				ReceiverID: send.ReceiverID,
				Text:       send.Message,
			},
		}, nil
	default:
		h.log.Debug().Str("client_id", client.ID).Str("type", inbound.Type).Msg("unknown ws message type ignored")
		return nil, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveMessage,
			Data:  directMessage(event.Delivery),
		}
	case core.EventMessageSent:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageSent,
			Data:  directMessage(event.Delivery),
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func directMessage(d *core.Delivery) proto.EventDirectMessage {
	if d == nil {
		return proto.EventDirectMessage{}
	}
	return proto.EventDirectMessage{
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Message:    d.Text,
		MessageID:  d.MessageID,
		ThreadID:   d.ThreadID,
		CreatedAt:  d.CreatedAt.UnixMilli(),
	}
}
