package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Schema is the PostgreSQL schema. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS threads (
	id                TEXT PRIMARY KEY,
	user_a            TEXT NOT NULL,
	user_b            TEXT NOT NULL,
	pair_key          TEXT NOT NULL,
	last_message_text TEXT NOT NULL DEFAULT '',
	last_message_at   TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	CONSTRAINT threads_pair_key_unique UNIQUE (pair_key),
	CONSTRAINT threads_sorted_pair CHECK (user_a < user_b)
);

CREATE INDEX IF NOT EXISTS idx_threads_user_a ON threads(user_a);
CREATE INDEX IF NOT EXISTS idx_threads_user_b ON threads(user_b);

CREATE TABLE IF NOT EXISTS messages (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL REFERENCES threads(id),
	sender_id  TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at, seq);
`

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store implements store.Store on PostgreSQL through lib/pq.
// Unlike SQLite it can be shared by several server instances, which is
// where the pair-key constraint does the serialization of thread creation.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens a connection pool for the given postgres URL.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// ==== UserStore implementation ====

func (s *Store) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, username, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, username, name, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, name, email, password_hash, created_at
		FROM users
		WHERE username = $1
	`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	if err := row.Scan(&user.ID, &user.Username, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== ThreadStore implementation ====

const threadColumns = `id, user_a, user_b, pair_key, last_message_text, last_message_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*store.Thread, error) {
	var thread store.Thread
	var lastAt sql.NullTime
	if err := row.Scan(
		&thread.ID,
		&thread.UserA,
		&thread.UserB,
		&thread.PairKey,
		&thread.LastMessageText,
		&lastAt,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		at := lastAt.Time
		thread.LastMessageAt = &at
	}
	return &thread, nil
}

func (s *Store) CreateThread(ctx context.Context, thread *store.Thread) error {
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	if thread.UpdatedAt.IsZero() {
		thread.UpdatedAt = thread.CreatedAt
	}

	query := `
		INSERT INTO threads (id, user_a, user_b, pair_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		thread.ID, thread.UserA, thread.UserB, thread.PairKey, thread.CreatedAt, thread.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert thread %s: %w", thread.PairKey, store.ErrConflict)
		}
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *Store) GetThreadByID(ctx context.Context, id string) (*store.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1`
	thread, err := scanThread(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query thread: %w", err)
	}
	return thread, nil
}

func (s *Store) GetThreadByPairKey(ctx context.Context, pairKey string) (*store.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE pair_key = $1`
	thread, err := scanThread(s.db.QueryRowContext(ctx, query, pairKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", pairKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query thread: %w", err)
	}
	return thread, nil
}

func (s *Store) UpdateThreadLastMessage(ctx context.Context, threadID, text string, at time.Time) error {
	query := `
		UPDATE threads
		SET last_message_text = $1, last_message_at = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, text, at, threadID)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("thread %s: %w", threadID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListThreadsForUser(ctx context.Context, userID string) ([]*store.Thread, error) {
	query := `
		SELECT ` + threadColumns + `
		FROM threads
		WHERE user_a = $1 OR user_b = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	threads := make([]*store.Thread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

// ==== MessageStore implementation ====

func (s *Store) AppendMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, thread_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`
	if err := s.db.QueryRowContext(ctx, query, msg.ID, msg.ThreadID, msg.SenderID, msg.Body, msg.CreatedAt).Scan(&msg.Seq); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) ListMessagesByThread(ctx context.Context, threadID string) ([]*store.Message, error) {
	query := `
		SELECT seq, id, thread_id, sender_id, body, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ThreadID, &msg.SenderID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
