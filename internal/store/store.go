package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is wrapped by stores when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is wrapped by stores when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("record already exists")
)

// User is an account known to the messaging service.
type User struct {
	ID           string
	Username     string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Thread is a two-party conversation.
// UserA and UserB are stored sorted so that UserA < UserB.
type Thread struct {
	ID              string
	UserA           string
	UserB           string
	PairKey         string // "{UserA}:{UserB}", unique per store
	LastMessageText string
	LastMessageAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (t *Thread) HasParticipant(userID string) bool {
	return userID != "" && (t.UserA == userID || t.UserB == userID)
}

// Peer returns the participant that is not userID.
func (t *Thread) Peer(userID string) string {
	if t.UserA == userID {
		return t.UserB
	}
	return t.UserA
}

// Message is a persisted chat message. Messages are never mutated.
type Message struct {
	ID        string
	ThreadID  string
	SenderID  string
	Body      string
	CreatedAt time.Time
	Seq       int64 // insertion order, assigned by the store
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser persists a new user. ID and CreatedAt are filled in when empty.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// ThreadStore handles thread persistence.
type ThreadStore interface {
	// CreateThread inserts a thread. Returns an error wrapping ErrConflict
	// when a thread with the same PairKey already exists.
	CreateThread(ctx context.Context, thread *Thread) error

	// GetThreadByID retrieves a thread by ID.
	GetThreadByID(ctx context.Context, id string) (*Thread, error)

	// GetThreadByPairKey retrieves the thread for a normalized participant pair.
	GetThreadByPairKey(ctx context.Context, pairKey string) (*Thread, error)

	// UpdateThreadLastMessage refreshes the denormalized last message snapshot.
	UpdateThreadLastMessage(ctx context.Context, threadID, text string, at time.Time) error

	// ListThreadsForUser lists threads the user participates in, most recent activity first.
	ListThreadsForUser(ctx context.Context, userID string) ([]*Thread, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a message and sets its Seq.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessagesByThread returns all messages of a thread, oldest first.
	// Messages with equal CreatedAt are returned in insertion order.
	ListMessagesByThread(ctx context.Context, threadID string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ThreadStore
	MessageStore

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
