package core

import "sync/atomic"

// DefaultBuffer is the default capacity of a client's command and event channels.
const DefaultBuffer = 16

// Client is one live connection as seen by the core layer. It doubles as the
// connection handle stored in the presence registry.
type Client struct {
	ID       string
	Commands chan *Command
	// Events is never closed; writers use non-blocking sends.
	Events chan *Event

	userID atomic.Pointer[string]
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Client{
		ID:       id,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
	}
}

// UserID returns the identity bound by the last online command, or "" while anonymous.
func (c *Client) UserID() string {
	if p := c.userID.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Client) bind(userID string) {
	c.userID.Store(&userID)
}
