package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Schema is the full SQLite schema. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS threads (
	id                TEXT PRIMARY KEY,
	user_a            TEXT NOT NULL,
	user_b            TEXT NOT NULL,
	pair_key          TEXT NOT NULL UNIQUE,
	last_message_text TEXT NOT NULL DEFAULT '',
	last_message_at   DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	CHECK (user_a < user_b)
);

CREATE INDEX IF NOT EXISTS idx_threads_user_a ON threads(user_a);
CREATE INDEX IF NOT EXISTS idx_threads_user_b ON threads(user_b);

CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (thread_id) REFERENCES threads(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at, seq);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without a separate migrate step.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema is a setup function for NewWithSetup that creates the full schema.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// ==== UserStore implementation ====

// CreateUser persists a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, username, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
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

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, username, name, email, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, name, email, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
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

// CreateThread inserts a thread; a duplicate pair key yields store.ErrConflict.
func (s *SQLiteStore) CreateThread(ctx context.Context, thread *store.Thread) error {
	now := time.Now().UTC()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	if thread.UpdatedAt.IsZero() {
		thread.UpdatedAt = thread.CreatedAt
	}

	query := `
		INSERT INTO threads (id, user_a, user_b, pair_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
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

// GetThreadByID retrieves a thread by ID.
func (s *SQLiteStore) GetThreadByID(ctx context.Context, id string) (*store.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = ?`
	thread, err := scanThread(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query thread: %w", err)
	}
	return thread, nil
}

// GetThreadByPairKey retrieves the thread for a normalized participant pair.
func (s *SQLiteStore) GetThreadByPairKey(ctx context.Context, pairKey string) (*store.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE pair_key = ?`
	thread, err := scanThread(s.db.QueryRowContext(ctx, query, pairKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", pairKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query thread: %w", err)
	}
	return thread, nil
}

// UpdateThreadLastMessage refreshes the denormalized last message snapshot.
func (s *SQLiteStore) UpdateThreadLastMessage(ctx context.Context, threadID, text string, at time.Time) error {
	query := `
		UPDATE threads
		SET last_message_text = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, text, at.UTC(), time.Now().UTC(), threadID)
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

// ListThreadsForUser lists threads the user participates in, most recent activity first.
func (s *SQLiteStore) ListThreadsForUser(ctx context.Context, userID string) ([]*store.Thread, error) {
	query := `
		SELECT ` + threadColumns + `
		FROM threads
		WHERE user_a = ? OR user_b = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
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

// AppendMessage persists a message and sets its Seq.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, thread_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.ID, msg.ThreadID, msg.SenderID, msg.Body, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.Seq = seq
	return nil
}

// ListMessagesByThread returns all messages of a thread ordered by (created_at, seq).
func (s *SQLiteStore) ListMessagesByThread(ctx context.Context, threadID string) ([]*store.Message, error) {
	query := `
		SELECT seq, id, thread_id, sender_id, body, created_at
		FROM messages
		WHERE thread_id = ?
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
