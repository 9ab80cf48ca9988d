package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeUserOnline  = "user-online"
	InboundTypeSendMessage = "send-message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventReceiveMessage = "receive-message"
	EventMessageSent    = "message-sent"
)

// UserOnlineData binds a user identity to the connection.
type UserOnlineData struct {
	UserID   string `json:"userId"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// SendMessageData is a direct message from the client.
type SendMessageData struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventDirectMessage is the payload of both receive-message and message-sent:
// the original send-message fields plus what persistence assigned.
type EventDirectMessage struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	MessageID  string `json:"messageId"`
	ThreadID   string `json:"threadId"`
	CreatedAt  int64  `json:"createdAt"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
