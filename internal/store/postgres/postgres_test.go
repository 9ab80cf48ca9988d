package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewWithDB(db), mock
}

var threadCols = []string{"id", "user_a", "user_b", "pair_key", "last_message_text", "last_message_at", "created_at", "updated_at"}

func TestCreateThreadMapsUniqueViolationToConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO threads").
		WithArgs("t1", "alice", "bob", "alice:bob", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"})

	err := s.CreateThread(context.Background(), &store.Thread{ID: "t1", UserA: "alice", UserB: "bob", PairKey: "alice:bob"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateThreadOtherErrorIsNotConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO threads").
		WillReturnError(errors.New("connection refused"))

	err := s.CreateThread(context.Background(), &store.Thread{ID: "t1", UserA: "alice", UserB: "bob", PairKey: "alice:bob"})
	if err == nil || errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestGetThreadByPairKey(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM threads WHERE pair_key").
		WithArgs("alice:bob").
		WillReturnRows(sqlmock.NewRows(threadCols).
			AddRow("t1", "alice", "bob", "alice:bob", "hi", now, now, now))

	thread, err := s.GetThreadByPairKey(context.Background(), "alice:bob")
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if thread.ID != "t1" || thread.LastMessageText != "hi" || thread.LastMessageAt == nil {
		t.Fatalf("unexpected thread: %+v", thread)
	}
}

func TestGetThreadByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM threads WHERE id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(threadCols))

	if _, err := s.GetThreadByID(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateThreadLastMessageMissingThread(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE threads").
		WithArgs("hi", sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.UpdateThreadLastMessage(context.Background(), "ghost", "hi", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendMessageReturnsSeq(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("m1", "t1", "alice", "hi", now).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	msg := &store.Message{ID: "m1", ThreadID: "t1", SenderID: "alice", Body: "hi", CreatedAt: now}
	if err := s.AppendMessage(context.Background(), msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.Seq != 42 {
		t.Fatalf("expected seq 42, got %d", msg.Seq)
	}
}

func TestListMessagesByThread(t *testing.T) {
	s, mock := newMockStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("ORDER BY created_at ASC, seq ASC").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "id", "thread_id", "sender_id", "body", "created_at"}).
			AddRow(int64(1), "m1", "t1", "alice", "one", base.Add(time.Second)).
			AddRow(int64(2), "m2", "t1", "bob", "two", base.Add(2*time.Second)))

	messages, err := s.ListMessagesByThread(context.Background(), "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 2 || messages[0].ID != "m1" || messages[1].SenderID != "bob" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := s.CreateUser(context.Background(), &store.User{Username: "alice", PasswordHash: "x"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
