package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-dm/internal/service/chat"
	"github.com/vovakirdan/wirechat-dm/internal/store"
	"github.com/vovakirdan/wirechat-dm/internal/store/sqlite"
)

func newTestStack(t *testing.T) (*Hub, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	for _, id := range []string{"alice", "bob"} {
		if err := st.CreateUser(context.Background(), &store.User{ID: id, Username: id, PasswordHash: "x"}); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	return NewHub(chat.New(st, nil), nil, nil), st
}

func connect(ctx context.Context, hub *Hub, id string) *Client {
	c := NewClient(id, 0)
	go hub.Serve(ctx, c)
	return c
}

func online(t *testing.T, hub *Hub, c *Client, userID string) {
	t.Helper()
	c.Commands <- &Command{Kind: CommandOnline, UserID: userID}
	waitOnline(t, hub, userID, c)
}

func TestHubDeliversToOnlineRecipientAndAcksSender(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub, st := newTestStack(t)
	alice := connect(ctx, hub, "c-alice")
	bob := connect(ctx, hub, "c-bob")
	online(t, hub, alice, "alice")
	online(t, hub, bob, "bob")

	alice.Commands <- &Command{
		Kind: CommandSendMessage,
		Send: SendPayload{SenderID: "alice", ReceiverID: "bob", Text: "hi"},
	}

	recv := mustEvent(t, bob.Events, EventReceiveMessage)
	if recv.Delivery.SenderID != "alice" || recv.Delivery.ReceiverID != "bob" || recv.Delivery.Text != "hi" {
		t.Fatalf("unexpected receive payload: %+v", recv.Delivery)
	}

	sent := mustEvent(t, alice.Events, EventMessageSent)
	if sent.Delivery.MessageID != recv.Delivery.MessageID || sent.Delivery.ThreadID == "" {
		t.Fatalf("ack should carry the persisted message: %+v", sent.Delivery)
	}

	thread, err := st.GetThreadByPairKey(ctx, "alice:bob")
	if err != nil {
		t.Fatalf("thread not created: %v", err)
	}
	if thread.LastMessageText != "hi" {
		t.Fatalf("expected last message hi, got %q", thread.LastMessageText)
	}
	messages, err := st.ListMessagesByThread(ctx, thread.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 || messages[0].SenderID != "alice" || messages[0].Body != "hi" {
		t.Fatalf("unexpected persisted messages: %+v", messages)
	}

	mustNoEvent(t, alice.Events, 50*time.Millisecond)
}

func TestHubOfflineRecipientStillPersistsAndAcks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub, st := newTestStack(t)
	alice := connect(ctx, hub, "c-alice")
	online(t, hub, alice, "alice")

	alice.Commands <- &Command{
		Kind: CommandSendMessage,
		Send: SendPayload{SenderID: "alice", ReceiverID: "bob", Text: "hi"},
	}

	mustEvent(t, alice.Events, EventMessageSent)

	thread, err := st.GetThreadByPairKey(ctx, "alice:bob")
	if err != nil {
		t.Fatalf("thread not created: %v", err)
	}
	if thread.LastMessageText != "hi" {
		t.Fatalf("expected last message hi, got %q", thread.LastMessageText)
	}
}

func TestHubDropsInvalidSendsSilently(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub, st := newTestStack(t)
	anon := connect(ctx, hub, "c-anon")
	alice := connect(ctx, hub, "c-alice")
	online(t, hub, alice, "alice")

	invalid := []struct {
		client  *Client
		payload SendPayload
	}{
		{anon, SendPayload{SenderID: "alice", ReceiverID: "bob", Text: "hi"}},
		{alice, SendPayload{SenderID: "alice", Text: "hi"}},
		{alice, SendPayload{SenderID: "alice", ReceiverID: "bob"}},
		{alice, SendPayload{ReceiverID: "bob", Text: "hi"}},
		{alice, SendPayload{SenderID: "bob", ReceiverID: "alice", Text: "spoofed"}},
	}
	for _, in := range invalid {
		in.client.Commands <- &Command{Kind: CommandSendMessage, Send: in.payload}
	}

	mustNoEvent(t, alice.Events, 100*time.Millisecond)
	mustNoEvent(t, anon.Events, 10*time.Millisecond)

	if _, err := st.GetThreadByPairKey(ctx, "alice:bob"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("no thread should exist, got %v", err)
	}
}

type fakeSender struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeSender) Send(_ context.Context, senderID, receiverID, body string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("database is locked")
	}
	return &store.Message{
		ID:        fmt.Sprintf("m%d", f.calls),
		ThreadID:  "t1",
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeSender) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func TestHubSendFailureEmitsNothingAndKeepsConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sender := &fakeSender{fail: true}
	hub := NewHub(sender, nil, nil)
	alice := connect(ctx, hub, "c-alice")
	bob := connect(ctx, hub, "c-bob")
	online(t, hub, alice, "alice")
	online(t, hub, bob, "bob")

	send := &Command{Kind: CommandSendMessage, Send: SendPayload{SenderID: "alice", ReceiverID: "bob", Text: "hi"}}
	alice.Commands <- send
	mustNoEvent(t, alice.Events, 100*time.Millisecond)
	mustNoEvent(t, bob.Events, 10*time.Millisecond)

	sender.setFail(false)
	alice.Commands <- send
	mustEvent(t, bob.Events, EventReceiveMessage)
	mustEvent(t, alice.Events, EventMessageSent)
}

func TestHubDisconnectKeepsNewerSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(&fakeSender{}, nil, nil)

	oldCtx, closeOld := context.WithCancel(ctx)
	oldConn := connect(oldCtx, hub, "c-old")
	online(t, hub, oldConn, "bob")

	newConn := connect(ctx, hub, "c-new")
	online(t, hub, newConn, "bob")

	closeOld()
	time.Sleep(50 * time.Millisecond)

	if got, ok := hub.Presence().Lookup("bob"); !ok || got != newConn {
		t.Fatalf("expected newer session to stay registered, got %v (ok=%v)", got, ok)
	}

	close(newConn.Commands)
	waitFor(t, "bob offline", func() bool {
		_, ok := hub.Presence().Lookup("bob")
		return !ok
	})
}

func TestHubFullRecipientBufferDoesNotBlockSender(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(&fakeSender{}, nil, nil)

	alice := NewClient("c-alice", 64)
	go hub.Serve(ctx, alice)
	online(t, hub, alice, "alice")

	bob := NewClient("c-bob", 1)
	go hub.Serve(ctx, bob)
	online(t, hub, bob, "bob")

	for range 3 {
		alice.Commands <- &Command{Kind: CommandSendMessage, Send: SendPayload{SenderID: "alice", ReceiverID: "bob", Text: "hi"}}
	}

	for range 3 {
		mustEvent(t, alice.Events, EventMessageSent)
	}
	if len(bob.Events) != 1 {
		t.Fatalf("expected bob's single-slot buffer to hold one event, got %d", len(bob.Events))
	}
}
