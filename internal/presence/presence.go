// Package presence tracks which live connection currently represents each user.
//
// A user has at most one registered handle; registering again replaces the
// previous handle (last registration wins). Unregister matches by handle, so
// a stale connection closing late cannot evict a newer session of the same
// user.
package presence

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry maps user IDs to connection handles. It is safe for concurrent use.
// Operations on the same user ID are linearizable; unrelated users never
// contend on a shared lock.
type Registry[H comparable] struct {
	byUser   *xsync.MapOf[string, H]
	byHandle *xsync.MapOf[H, string]
}

// NewRegistry creates an empty registry.
func NewRegistry[H comparable]() *Registry[H] {
	return &Registry[H]{
		byUser:   xsync.NewMapOf[string, H](),
		byHandle: xsync.NewMapOf[H, string](),
	}
}

// Register binds userID to h, replacing any previous handle for userID.
// If h was previously registered under a different user, that binding is dropped.
func (r *Registry[H]) Register(userID string, h H) {
	if prev, ok := r.byHandle.Load(h); ok && prev != userID {
		r.removeIfCurrent(prev, h)
	}
	r.byHandle.Store(h, userID)
	r.byUser.Store(userID, h)
}

// Lookup returns the live handle for userID. ok is false when the user is offline.
func (r *Registry[H]) Lookup(userID string) (h H, ok bool) {
	return r.byUser.Load(userID)
}

// Unregister removes the entry whose stored handle equals h.
// It returns the user that was removed; removed is false when h is not the
// current handle of any user.
func (r *Registry[H]) Unregister(h H) (userID string, removed bool) {
	userID, ok := r.byHandle.LoadAndDelete(h)
	if !ok {
		return "", false
	}
	return userID, r.removeIfCurrent(userID, h)
}

// Online returns the number of users with a live handle.
func (r *Registry[H]) Online() int {
	return r.byUser.Size()
}

func (r *Registry[H]) removeIfCurrent(userID string, h H) bool {
	removed := false
	r.byUser.Compute(userID, func(current H, loaded bool) (H, bool) {
		if !loaded {
			// Nothing stored: ask Compute to delete, which is a no-op.
			return current, true
		}
		if current != h {
			return current, false
		}
		removed = true
		return current, true
	})
	return removed
}
