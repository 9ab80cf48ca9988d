package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage pushes a new direct message to its online recipient.
	EventReceiveMessage EventKind = iota
	// EventMessageSent acknowledges a persisted message to its sender.
	EventMessageSent
	// EventError notifies a client about a protocol error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Delivery *Delivery // EventReceiveMessage, EventMessageSent
	Error    *CoreError
}
