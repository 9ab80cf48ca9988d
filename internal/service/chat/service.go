package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/metrics"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// DefaultMaxMessageLength is the maximum message length in characters.
const DefaultMaxMessageLength = 2000

// Store is the persistence the chat service depends on.
type Store interface {
	store.UserStore
	store.ThreadStore
	store.MessageStore
}

// HistoryEntry is a message enriched with its sender's display fields.
type HistoryEntry struct {
	Message     *store.Message
	SenderName  string
	SenderEmail string
}

// Service resolves threads, persists messages and serves thread history.
type Service struct {
	store             Store
	log               *zerolog.Logger
	now               func() time.Time
	maxLength         int
	enforceMembership bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxMessageLength sets the message length limit; n <= 0 keeps the default.
func WithMaxMessageLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// WithMembershipCheck controls whether History requires the caller to be a participant.
func WithMembershipCheck(enabled bool) Option {
	return func(s *Service) { s.enforceMembership = enabled }
}

// New creates a chat service.
func New(st Store, logger *zerolog.Logger, opts ...Option) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		store:             st,
		log:               logger,
		now:               time.Now,
		maxLength:         DefaultMaxMessageLength,
		enforceMembership: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PairKey normalizes an unordered participant pair.
func PairKey(a, b string) (userA, userB, key string) {
	if b < a {
		a, b = b, a
	}
	return a, b, a + ":" + b
}

// ResolveThread returns the thread between a and b, creating it if absent.
// Concurrent callers for the same pair all receive the same thread: the
// store's unique pair key rejects the losing inserts, which then re-read.
func (s *Service) ResolveThread(ctx context.Context, a, b string) (*store.Thread, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("%w: both participants are required", ErrValidation)
	}
	if a == b {
		return nil, fmt.Errorf("%w: cannot open a thread with yourself", ErrValidation)
	}

	userA, userB, key := PairKey(a, b)

	thread, err := s.store.GetThreadByPairKey(ctx, key)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: lookup thread: %w", ErrStorage, err)
	}

	thread = &store.Thread{
		ID:      uuid.NewString(),
		UserA:   userA,
		UserB:   userB,
		PairKey: key,
	}
	err = s.store.CreateThread(ctx, thread)
	if err == nil {
		metrics.ThreadsCreated.Inc()
		s.log.Debug().Str("thread_id", thread.ID).Str("pair_key", key).Msg("thread created")
		return thread, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("%w: create thread: %w", ErrStorage, err)
	}

	metrics.ThreadCreateConflicts.Inc()
	thread, err = s.store.GetThreadByPairKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: reread thread after conflict: %w", ErrStorage, err)
	}
	return thread, nil
}

func (s *Service) validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if utf8.RuneCountInString(body) > s.maxLength {
		return fmt.Errorf("%w: message must be between 1 and %d characters", ErrValidation, s.maxLength)
	}
	return nil
}

// Append persists a new message in thread. It does not touch the thread's
// last message snapshot; Send does that.
func (s *Service) Append(ctx context.Context, thread *store.Thread, senderID, body string) (*store.Message, error) {
	if thread == nil {
		return nil, fmt.Errorf("%w: thread is required", ErrValidation)
	}
	if err := s.validateBody(body); err != nil {
		return nil, err
	}
	if !thread.HasParticipant(senderID) {
		return nil, fmt.Errorf("%w: sender is not a participant of the thread", ErrValidation)
	}

	msg := &store.Message{
		ID:        ulid.Make().String(),
		ThreadID:  thread.ID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: append message: %w", ErrStorage, err)
	}
	return msg, nil
}

// Send resolves the sender/receiver thread, appends the message and refreshes
// the thread's last message snapshot. A failed snapshot update is logged and
// does not fail the send.
func (s *Service) Send(ctx context.Context, senderID, receiverID, body string) (*store.Message, error) {
	if senderID == "" || receiverID == "" {
		return nil, fmt.Errorf("%w: sender and receiver are required", ErrValidation)
	}
	if err := s.validateBody(body); err != nil {
		return nil, err
	}

	for _, p := range []struct{ role, id string }{{"sender", senderID}, {"receiver", receiverID}} {
		if _, err := s.store.GetUserByID(ctx, p.id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s %s", ErrNotFound, p.role, p.id)
			}
			return nil, fmt.Errorf("%w: lookup %s: %w", ErrStorage, p.role, err)
		}
	}

	thread, err := s.ResolveThread(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	msg, err := s.Append(ctx, thread, senderID, body)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateThreadLastMessage(ctx, thread.ID, msg.Body, msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).Str("thread_id", thread.ID).Str("message_id", msg.ID).Msg("failed to update thread last message")
	}

	return msg, nil
}

// History returns the thread's messages oldest first, each enriched with the
// sender's name and email.
func (s *Service) History(ctx context.Context, threadID, callerID string) ([]HistoryEntry, error) {
	if threadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", ErrValidation)
	}

	thread, err := s.store.GetThreadByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
		}
		return nil, fmt.Errorf("%w: lookup thread: %w", ErrStorage, err)
	}

	if s.enforceMembership && !thread.HasParticipant(callerID) {
		return nil, fmt.Errorf("%w: not a participant of this thread", ErrForbidden)
	}

	messages, err := s.store.ListMessagesByThread(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %w", ErrStorage, err)
	}

	senders := make(map[string]*store.User, 2)
	entries := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		sender, seen := senders[msg.SenderID]
		if !seen {
			sender, err = s.store.GetUserByID(ctx, msg.SenderID)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					return nil, fmt.Errorf("%w: lookup sender: %w", ErrStorage, err)
				}
				sender = nil
			}
			senders[msg.SenderID] = sender
		}

		entry := HistoryEntry{Message: msg}
		if sender != nil {
			entry.SenderName = sender.Name
			if entry.SenderName == "" {
				entry.SenderName = sender.Username
			}
			entry.SenderEmail = sender.Email
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Threads lists the user's threads, most recent activity first.
func (s *Service) Threads(ctx context.Context, userID string) ([]*store.Thread, error) {
	threads, err := s.store.ListThreadsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list threads: %w", ErrStorage, err)
	}
	return threads, nil
}
