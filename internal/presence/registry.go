// ABOUTME: Registry tracks which live connection handle belongs to which user
// ABOUTME: One handle per user, last connect wins; both directions updated under one lock

package presence

import (
	"log/slog"
	"sync"

	"github.com/2389/dm-gateway/internal/metrics"
)

// Registry maps users to their live connection handle and back.
//
// For every user u and handle h, HandleFor(u) == h exactly when UserFor(h) == u.
// The registry performs no I/O: closing a replaced handle is the caller's job.
type Registry[H comparable] struct {
	mu       sync.Mutex
	byUser   map[int64]H
	byHandle map[H]int64
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry[H comparable](logger *slog.Logger) *Registry[H] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[H]{
		byUser:   make(map[int64]H),
		byHandle: make(map[H]int64),
		logger:   logger.With("component", "presence"),
	}
}

// Connect binds h to userID. If the user already had a different handle it is
// unbound in the same critical section and returned as replaced, so the
// caller can close it. Reconnecting the same handle is a no-op.
func (r *Registry[H]) Connect(userID int64, h H) (replaced H, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A handle belongs to at most one user.
	if prevUser, bound := r.byHandle[h]; bound && prevUser != userID {
		delete(r.byUser, prevUser)
	}

	old, had := r.byUser[userID]
	if had && old != h {
		delete(r.byHandle, old)
		replaced, ok = old, true
	}

	r.byUser[userID] = h
	r.byHandle[h] = userID
	metrics.ConnectedUsers.Set(float64(len(r.byUser)))

	r.logger.Info("user connected",
		"user_id", userID,
		"replaced", ok,
		"connected_users", len(r.byUser),
	)
	return replaced, ok
}

// Disconnect unbinds h. Unknown handles, including ones already replaced by
// a newer connection, are ignored and the newer binding stays intact.
func (r *Registry[H]) Disconnect(h H) (userID int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.byHandle[h]
	if !ok {
		return 0, false
	}

	delete(r.byHandle, h)
	if current, exists := r.byUser[userID]; exists && current == h {
		delete(r.byUser, userID)
	}
	metrics.ConnectedUsers.Set(float64(len(r.byUser)))

	r.logger.Info("user disconnected",
		"user_id", userID,
		"connected_users", len(r.byUser),
	)
	return userID, true
}

// HandleFor returns the live handle for userID.
func (r *Registry[H]) HandleFor(userID int64) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byUser[userID]
	return h, ok
}

// UserFor returns the user bound to h.
func (r *Registry[H]) UserFor(h H) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byHandle[h]
	return userID, ok
}

// IsOnline reports whether userID has a live handle.
func (r *Registry[H]) IsOnline(userID int64) bool {
	_, ok := r.HandleFor(userID)
	return ok
}

// Len returns the number of connected users.
func (r *Registry[H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// Users returns a snapshot of connected user IDs in no particular order.
func (r *Registry[H]) Users() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]int64, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	return users
}
