// Package notifier fans out refresh pings to the SSE streams of a session.
package notifier

import "sync"

// Hub delivers pings to listeners grouped by session ID. A ping carries no
// data; listeners re-read the session and render it.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]map[chan struct{}]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{listeners: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers a listener for sessionID. The caller must call
// Unsubscribe with the same channel when done.
func (h *Hub) Subscribe(sessionID string) chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	set, ok := h.listeners[sessionID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.listeners[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (h *Hub) Unsubscribe(sessionID string, ch chan struct{}) {
	h.mu.Lock()
	if set, ok := h.listeners[sessionID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.listeners, sessionID)
		}
	}
	h.mu.Unlock()
}

// Notify pings every listener of sessionID. It never blocks: a listener
// with a pending ping is skipped.
func (h *Hub) Notify(sessionID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.listeners[sessionID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Listeners returns the number of listeners for sessionID.
func (h *Hub) Listeners(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[sessionID])
}
