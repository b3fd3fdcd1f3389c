// Package session holds per-user credential gate state.
//
// A Session stores the raw secrets, one validation flag per secret, the
// cached schema and last result, and the pooled bridge connection. The gate
// is unlocked only while both flags are set; changing a secret clears its flag.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/connstr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/present"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/schema"
)

// ErrBusy is returned by Begin while another operation holds the slot.
var ErrBusy = errors.New("another operation is already running")

// Conn is a pooled bridge connection owned by a session.
type Conn interface {
	Query(ctx context.Context, sql string) (string, error)
	Close() error
}

// Session is one user's state. All methods are safe for concurrent use.
type Session struct {
	ID string

	slot sync.Mutex

	mu           sync.Mutex
	apiKey       string
	llmValidated bool
	db           connstr.Params
	dbValidated  bool
	schema       *schema.Map
	result       *present.Result
	lastSQL      string
	conn         Conn
	messages     []Message
	runningOp    string
	lastSeen     time.Time
	now          func() time.Time
}

func newSession(id string, now func() time.Time) *Session {
	return &Session{ID: id, now: now, lastSeen: now()}
}

// New returns a standalone session, used by terminal front ends.
func New(id string) *Session {
	return newSession(id, time.Now)
}

// SetAPIKey stores key without validating it. A different key clears the
// LLM flag. It reports whether the key changed.
func (s *Session) SetAPIKey(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.apiKey {
		return false
	}
	s.apiKey = key
	s.llmValidated = false
	return true
}

// SetDBParams stores p without validating it. Different parameters clear the
// DB flag, drop the cached schema and close the pooled connection.
func (s *Session) SetDBParams(p connstr.Params) bool {
	s.mu.Lock()
	if p.Equal(s.db) {
		s.mu.Unlock()
		return false
	}
	s.db = p
	conn := s.resetDBLocked()
	s.mu.Unlock()

	closeConn(conn)
	return true
}

// APIKey returns the stored key.
func (s *Session) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

// DBParams returns the stored connection parameters.
func (s *Session) DBParams() connstr.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// MarkLLM records a validation outcome for key. It is ignored when the
// stored key changed while the validation ran.
func (s *Session) MarkLLM(key string, ok bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != s.apiKey {
		return false
	}
	s.llmValidated = ok
	return true
}

// MarkDBConnected records a successful validation for p and pools conn,
// closing any connection pooled before. When p is stale, conn is closed
// and nothing changes.
func (s *Session) MarkDBConnected(p connstr.Params, conn Conn) bool {
	s.mu.Lock()
	if !p.Equal(s.db) {
		s.mu.Unlock()
		closeConn(conn)
		return false
	}
	prev := s.conn
	s.conn = conn
	s.dbValidated = true
	s.mu.Unlock()

	if prev != conn {
		closeConn(prev)
	}
	return true
}

// MarkDBFailed clears the DB flag for p, dropping schema and connection.
func (s *Session) MarkDBFailed(p connstr.Params) {
	s.mu.Lock()
	if !p.Equal(s.db) {
		s.mu.Unlock()
		return
	}
	conn := s.resetDBLocked()
	s.mu.Unlock()

	closeConn(conn)
}

func (s *Session) resetDBLocked() Conn {
	conn := s.conn
	s.conn = nil
	s.dbValidated = false
	s.schema = nil
	return conn
}

// Conn returns the pooled connection, or nil.
func (s *Session) Conn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// PoolConn stores conn as the pooled connection if the DB flag is still set
// for p. Otherwise conn is closed.
func (s *Session) PoolConn(p connstr.Params, conn Conn) bool {
	s.mu.Lock()
	if !s.dbValidated || !p.Equal(s.db) || s.conn != nil {
		s.mu.Unlock()
		closeConn(conn)
		return false
	}
	s.conn = conn
	s.mu.Unlock()
	return true
}

// DropConn closes and forgets conn if it is the pooled one. The DB flag
// stays set so the next operation respawns.
func (s *Session) DropConn(conn Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	closeConn(conn)
}

// IsUnlocked reports whether both secrets are validated.
func (s *Session) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.llmValidated && s.dbValidated
}

// Flags returns the LLM and DB validation flags.
func (s *Session) Flags() (llm, db bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.llmValidated, s.dbValidated
}

// State derives the gate state from the flags.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.runningOp == OpQuery && s.llmValidated && s.dbValidated:
		return QueryRunning
	case s.llmValidated && s.dbValidated && s.schema != nil:
		return SchemaLoaded
	case s.llmValidated && s.dbValidated:
		return FullyValidated
	case s.dbValidated:
		return DBValidated
	case s.llmValidated:
		return LLMValidated
	default:
		return Locked
	}
}

// Begin takes the session's single operation slot. It never blocks: while
// another operation runs it returns ErrBusy. The returned func releases the
// slot and must be called exactly once.
func (s *Session) Begin(op string) (func(), error) {
	if !s.slot.TryLock() {
		return nil, ErrBusy
	}
	s.mu.Lock()
	s.runningOp = op
	s.lastSeen = s.now()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.runningOp = ""
			s.lastSeen = s.now()
			s.mu.Unlock()
			s.slot.Unlock()
		})
	}, nil
}

// Running returns the operation holding the slot, or "".
func (s *Session) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningOp
}

// SetSchema caches m.
func (s *Session) SetSchema(m *schema.Map) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = m
}

// Schema returns the cached schema map, or nil.
func (s *Session) Schema() *schema.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema
}

// SetResult stores the last presented result and the SQL that produced it.
func (s *Session) SetResult(sql string, r present.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSQL = sql
	s.result = &r
}

// Result returns the last result, if any.
func (s *Session) Result() (present.Result, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return present.Result{}, "", false
	}
	return *s.result, s.lastSQL, true
}

// Message is a status line shown to the user after an operation.
type Message struct {
	Level string
	Text  string
}

// SetMessages replaces the status lines.
func (s *Session) SetMessages(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]Message(nil), msgs...)
}

// Touch refreshes the idle timer.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
}

// LastSeen returns the time of the last activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close releases the pooled connection.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// View is a point-in-time copy of what the UI renders.
type View struct {
	ID           string
	State        State
	LLMValidated bool
	DBValidated  bool
	Running      string
	Schema       *schema.Map
	Result       *present.Result
	LastSQL      string
	Messages     []Message
	Server       string
	Database     string
	Username     string
}

// Snapshot copies the session for rendering. Secrets are not included.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:           s.ID,
		State:        s.stateLocked(),
		LLMValidated: s.llmValidated,
		DBValidated:  s.dbValidated,
		Running:      s.runningOp,
		Schema:       s.schema,
		LastSQL:      s.lastSQL,
		Messages:     append([]Message(nil), s.messages...),
		Server:       s.db.Server,
		Database:     s.db.Database,
		Username:     s.db.Username,
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}

func closeConn(c Conn) {
	if c != nil {
		_ = c.Close()
	}
}
