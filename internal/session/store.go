package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps sessions in memory, keyed by an opaque ID.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
	retain   func(id string) bool
	logger   *slog.Logger
}

// NewStore returns an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{sessions: map[string]*Session{}, now: time.Now, logger: logger}
}

// Create starts a new session with a random ID.
func (st *Store) Create() *Session {
	s := newSession(uuid.NewString(), st.now)
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	st.logger.Debug("session created", "session", s.ID)
	return s
}

// Get returns the session for id and refreshes its idle timer.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if ok {
		s.Touch()
	}
	return s, ok
}

// GetOrCreate returns the session for id, or a new one when id is unknown.
// A new session never reuses the caller's ID.
func (st *Store) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if s, ok := st.Get(id); ok {
			return s, false
		}
	}
	return st.Create(), true
}

// Delete removes a session and closes its connection.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// IDs returns the IDs of the live sessions in no particular order.
func (st *Store) IDs() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Retain registers fn to keep otherwise idle sessions alive, such as those
// with an open update stream. fn must not call back into the store.
func (st *Store) Retain(fn func(id string) bool) {
	st.mu.Lock()
	st.retain = fn
	st.mu.Unlock()
}

// Sweep removes sessions idle for longer than idle. Sessions with an
// operation in flight, or retained, are kept. It returns the number removed.
func (st *Store) Sweep(idle time.Duration) int {
	cutoff := st.now().Add(-idle)

	var expired []*Session
	st.mu.Lock()
	for id, s := range st.sessions {
		if st.retain != nil && st.retain(id) {
			continue
		}
		if s.Running() == "" && s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		_ = s.Close()
		st.logger.Info("session expired", "session", s.ID)
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (st *Store) RunSweeper(ctx context.Context, idle, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st.Sweep(idle)
		}
	}
}

// Close removes every session and closes their connections.
func (st *Store) Close() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = map[string]*Session{}
	st.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
}
