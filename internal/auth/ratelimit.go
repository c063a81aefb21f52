package auth

import (
	"sync"
	"time"
)

const defaultWindow = 60 * time.Second

// RateLimiter enforces a per-client sliding window. A rejected request
// does not advance the window count.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*windowState
}

type windowState struct {
	start time.Time
	count int
}

// NewRateLimiter creates a limiter allowing limit requests per window.
// A non-positive limit disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = defaultWindow
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*windowState),
	}
}

// Allow records one request for the client and reports whether it is
// admitted.
func (l *RateLimiter) Allow(clientID string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.clients[clientID]
	if !ok {
		state = &windowState{start: now}
		l.clients[clientID] = state
	}
	if now.Sub(state.start) >= l.window {
		state.start = now
		state.count = 0
	}
	if state.count >= l.limit {
		return false
	}
	state.count++
	return true
}

// Remove drops the client's window state, typically on disconnect.
func (l *RateLimiter) Remove(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, clientID)
}

// ActiveClients returns the number of tracked clients.
func (l *RateLimiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
