package core

import "time"

// SendPayload is the inbound send-message payload exactly as the client sent it.
type SendPayload struct {
	SenderID   string
	ReceiverID string
	Text       string
}

// Complete reports whether all required fields are present.
func (p SendPayload) Complete() bool {
	return p.SenderID != "" && p.ReceiverID != "" && p.Text != ""
}

// Delivery is the payload echoed to the recipient and back to the sender once
// the message is persisted.
type Delivery struct {
	SendPayload
	MessageID string
	ThreadID  string
	CreatedAt time.Time
}
