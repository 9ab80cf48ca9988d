package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandOnline binds a user identity to the connection and marks the user online.
	CommandOnline CommandKind = iota
	// CommandSendMessage delivers a direct message to another user.
	CommandSendMessage
)

// Command represents an action requested by a client.
type Command struct {
	Kind   CommandKind
	UserID string      // CommandOnline
	Send   SendPayload // CommandSendMessage
}
