package presence

import (
	"fmt"
	"sync"
	"testing"
)

type conn struct{ id string }

func TestRegisterOverwritesAndStaleUnregisterIsNoop(t *testing.T) {
	r := NewRegistry[*conn]()
	c1 := &conn{id: "c1"}
	c2 := &conn{id: "c2"}

	r.Register("u", c1)
	r.Register("u", c2)

	if got, ok := r.Lookup("u"); !ok || got != c2 {
		t.Fatalf("expected c2, got %v (ok=%v)", got, ok)
	}

	if _, removed := r.Unregister(c1); removed {
		t.Fatalf("stale unregister must not remove the newer session")
	}
	if got, ok := r.Lookup("u"); !ok || got != c2 {
		t.Fatalf("expected c2 after stale unregister, got %v (ok=%v)", got, ok)
	}

	user, removed := r.Unregister(c2)
	if !removed || user != "u" {
		t.Fatalf("expected u removed, got %q removed=%v", user, removed)
	}
	if _, ok := r.Lookup("u"); ok {
		t.Fatalf("expected u offline")
	}
}

func TestLookupAbsentUser(t *testing.T) {
	r := NewRegistry[*conn]()

	if got, ok := r.Lookup("nobody"); ok || got != nil {
		t.Fatalf("expected absent, got %v", got)
	}
	if _, removed := r.Unregister(&conn{}); removed {
		t.Fatalf("unregister of unknown handle must be a no-op")
	}
}

func TestRegisterSameHandleUnderNewUser(t *testing.T) {
	r := NewRegistry[*conn]()
	c := &conn{id: "c"}

	r.Register("alice", c)
	r.Register("bob", c)

	if _, ok := r.Lookup("alice"); ok {
		t.Fatalf("alice binding should be dropped when the handle rebinds")
	}
	if got, ok := r.Lookup("bob"); !ok || got != c {
		t.Fatalf("expected bob bound to c")
	}
	if r.Online() != 1 {
		t.Fatalf("expected 1 online, got %d", r.Online())
	}
}

func TestConcurrentUsers(t *testing.T) {
	r := NewRegistry[*conn]()
	const users = 64

	var wg sync.WaitGroup
	conns := make([]*conn, users)
	for i := range users {
		conns[i] = &conn{id: fmt.Sprintf("c%d", i)}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Register(fmt.Sprintf("u%d", i), conns[i])
		}(i)
	}
	wg.Wait()

	if r.Online() != users {
		t.Fatalf("expected %d online, got %d", users, r.Online())
	}

	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Unregister(conns[i])
		}(i)
	}
	wg.Wait()

	if r.Online() != 0 {
		t.Fatalf("expected 0 online, got %d", r.Online())
	}
}

func TestConcurrentReconnectKeepsNewestSession(t *testing.T) {
	r := NewRegistry[*conn]()
	old := &conn{id: "old"}
	r.Register("u", old)

	newer := &conn{id: "new"}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.Register("u", newer)
	}()
	go func() {
		defer wg.Done()
		r.Unregister(old)
	}()
	wg.Wait()

	if got, ok := r.Lookup("u"); !ok || got != newer {
		t.Fatalf("expected newest session to survive, got %v (ok=%v)", got, ok)
	}
}
