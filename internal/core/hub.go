package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/metrics"
	"github.com/vovakirdan/wirechat-dm/internal/presence"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// MessageSender persists a direct message, resolving its thread as needed.
type MessageSender interface {
	Send(ctx context.Context, senderID, receiverID, body string) (*store.Message, error)
}

// Hub routes direct messages between live connections.
//
// Each connection is served by its own goroutine (Serve), so commands from
// one connection are handled strictly in order while connections proceed
// independently. The only shared state is the presence registry.
type Hub struct {
	sender   MessageSender
	presence *presence.Registry[*Client]
	log      *zerolog.Logger
}

// NewHub creates a hub. A nil registry gets a fresh one.
func NewHub(sender MessageSender, registry *presence.Registry[*Client], logger *zerolog.Logger) *Hub {
	if registry == nil {
		registry = presence.NewRegistry[*Client]()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		sender:   sender,
		presence: registry,
		log:      logger,
	}
}

// Presence exposes the registry the hub routes through.
func (h *Hub) Presence() *presence.Registry[*Client] {
	return h.presence
}

// Serve processes client commands until ctx is done or Commands is closed,
// then removes the client from presence. It blocks.
func (h *Hub) Serve(ctx context.Context, client *Client) {
	defer h.disconnect(client)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-client.Commands:
			if !ok {
				return
			}
			if cmd != nil {
				h.handle(ctx, client, cmd)
			}
		}
	}
}

func (h *Hub) handle(ctx context.Context, client *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandOnline:
		h.online(client, cmd.UserID)
	case CommandSendMessage:
		h.send(ctx, client, cmd.Send)
	default:
		h.log.Warn().Str("client_id", client.ID).Int("kind", int(cmd.Kind)).Msg("unknown command")
	}
}

func (h *Hub) online(client *Client, userID string) {
	if userID == "" {
		h.log.Debug().Str("client_id", client.ID).Msg("online without user id ignored")
		return
	}
	client.bind(userID)
	h.presence.Register(userID, client)
	metrics.OnlineUsers.Set(float64(h.presence.Online()))
	h.log.Info().Str("client_id", client.ID).Str("user_id", userID).Msg("user online")
}

// send persists the message, pushes it to the recipient if online and
// acknowledges it to the sender. Invalid payloads are dropped without a
// reply; persistence failures are logged and nothing is emitted.
func (h *Hub) send(ctx context.Context, client *Client, payload SendPayload) {
	userID := client.UserID()
	switch {
	case userID == "":
		h.drop(client, "anonymous")
		return
	case !payload.Complete():
		h.drop(client, "missing_field")
		return
	case payload.SenderID != userID:
		h.drop(client, "sender_mismatch")
		return
	}

	msg, err := h.sender.Send(ctx, payload.SenderID, payload.ReceiverID, payload.Text)
	if err != nil {
		metrics.SendFailures.Inc()
		h.log.Error().Err(err).
			Str("client_id", client.ID).
			Str("sender_id", payload.SenderID).
			Str("receiver_id", payload.ReceiverID).
			Msg("send message failed")
		return
	}
	metrics.MessagesPersisted.WithLabelValues("ws").Inc()

	delivery := &Delivery{
		SendPayload: payload,
		MessageID:   msg.ID,
		ThreadID:    msg.ThreadID,
		CreatedAt:   msg.CreatedAt,
	}

	if recipient, online := h.presence.Lookup(payload.ReceiverID); online {
		if push(recipient, &Event{Kind: EventReceiveMessage, Delivery: delivery}) {
			metrics.LiveDeliveries.Inc()
		} else {
			metrics.DroppedPushes.WithLabelValues("receive-message").Inc()
			h.log.Warn().Str("client_id", recipient.ID).Str("message_id", msg.ID).Msg("recipient buffer full, live push dropped")
		}
	}

	if !push(client, &Event{Kind: EventMessageSent, Delivery: delivery}) {
		metrics.DroppedPushes.WithLabelValues("message-sent").Inc()
		h.log.Warn().Str("client_id", client.ID).Str("message_id", msg.ID).Msg("sender buffer full, ack dropped")
	}
}

func (h *Hub) drop(client *Client, reason string) {
	metrics.DroppedSends.WithLabelValues(reason).Inc()
	h.log.Debug().Str("client_id", client.ID).Str("reason", reason).Msg("send-message dropped")
}

func (h *Hub) disconnect(client *Client) {
	userID, removed := h.presence.Unregister(client)
	if !removed {
		return
	}
	metrics.OnlineUsers.Set(float64(h.presence.Online()))
	h.log.Info().Str("client_id", client.ID).Str("user_id", userID).Msg("user offline")
}

// push delivers an event without blocking. Drop if slow consumer.
func push(client *Client, event *Event) bool {
	select {
	case client.Events <- event:
		return true
	default:
		return false
	}
}
