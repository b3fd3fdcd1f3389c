// Package workflow runs the session-gated operations: key and connection
// validation, schema loading and query dispatch. It is the only caller of
// the validators, the bridge and the presenter, and every error it returns
// is an *apperr.E.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/apperr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/connstr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/llm"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/mcpbridge"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/present"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/schema"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
)

// ProbeQuery is the no-op query used to test a connection.
const ProbeQuery = "SELECT 1"

// Default bounded waits.
const (
	DefaultLLMTimeout   = 20 * time.Second
	DefaultProbeTimeout = 45 * time.Second
	DefaultQueryTimeout = 60 * time.Second
)

// LaunchFunc starts a bridge subprocess for a connection string.
type LaunchFunc func(ctx context.Context, connStr string) (session.Conn, error)

// FromLauncher adapts a bridge launcher.
func FromLauncher(l *mcpbridge.Launcher) LaunchFunc {
	return func(ctx context.Context, connStr string) (session.Conn, error) {
		c, err := l.Launch(ctx, connStr)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Config holds the bounded waits.
type Config struct {
	LLMTimeout   time.Duration
	ProbeTimeout time.Duration
	QueryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = DefaultLLMTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	return c
}

// Workflow wires the collaborators together. It holds no session state.
type Workflow struct {
	llm     llm.Provider
	launch  LaunchFunc
	cfg     Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New returns a Workflow. metrics may be nil.
func New(provider llm.Provider, launch LaunchFunc, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		llm:     provider,
		launch:  launch,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		logger:  logger,
	}
}

// Provider returns the LLM provider name.
func (w *Workflow) Provider() string { return w.llm.Name() }

// ValidateLLM makes one minimal call with the session's key.
func (w *Workflow) ValidateLLM(ctx context.Context, s *session.Session, updates ...Update) (err error) {
	release, err := begin(s, session.OpValidateLLM, updates)
	if err != nil {
		return err
	}
	defer release()

	key := s.APIKey()
	defer w.finish(s, session.OpValidateLLM, time.Now(), &err, "key", llm.MaskKey(key), "provider", w.llm.Name())

	if strings.TrimSpace(key) == "" {
		return apperr.New(apperr.EmptyInput, "Please enter your API key.")
	}

	cctx, cancel := context.WithTimeout(ctx, w.cfg.LLMTimeout)
	defer cancel()

	if perr := w.llm.Ping(cctx, key); perr != nil {
		s.MarkLLM(key, false)
		if isTimeout(cctx, perr) {
			return apperr.Wrap(apperr.AuthError, fmt.Sprintf("no response from %s within %s", w.llm.Name(), w.cfg.LLMTimeout), deadline(perr))
		}
		return apperr.Wrap(apperr.AuthError, perr.Error(), perr)
	}
	s.MarkLLM(key, true)
	return nil
}

// ValidateDB launches a fresh bridge for the session's credentials and runs
// ProbeQuery. On success the connection becomes the session's pooled one.
func (w *Workflow) ValidateDB(ctx context.Context, s *session.Session, updates ...Update) (err error) {
	release, err := begin(s, session.OpValidateDB, updates)
	if err != nil {
		return err
	}
	defer release()

	p := s.DBParams()
	defer w.finish(s, session.OpValidateDB, time.Now(), &err, "server", p.Server, "database", p.Database)

	if verr := p.Validate(); verr != nil {
		var missing *connstr.MissingFieldsError
		if errors.As(verr, &missing) {
			return apperr.Wrap(apperr.EmptyInput, "Please fill in: "+strings.Join(missing.Fields, ", ")+".", verr)
		}
		return apperr.Wrap(apperr.EmptyInput, verr.Error(), verr)
	}

	// Each attempt gets its own subprocess.
	s.DropConn(s.Conn())

	cctx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	defer cancel()

	conn, lerr := w.launchConn(cctx, p)
	if lerr != nil {
		s.MarkDBFailed(p)
		return w.connectionError(cctx, lerr)
	}

	if _, qerr := conn.Query(cctx, ProbeQuery); qerr != nil && !errors.Is(qerr, mcpbridge.ErrEmptyResult) {
		_ = conn.Close()
		s.MarkDBFailed(p)
		if errors.Is(qerr, mcpbridge.ErrNoQueryToolFound) {
			return apperr.Wrap(apperr.ProtocolError, "the SQL bridge does not offer a query tool", qerr)
		}
		return w.connectionError(cctx, qerr)
	}

	if !s.MarkDBConnected(p, conn) {
		return apperr.New(apperr.ConnectionError, "connection details changed while testing; test again")
	}
	return nil
}

// LoadSchema runs the INFORMATION_SCHEMA query and caches the result.
func (w *Workflow) LoadSchema(ctx context.Context, s *session.Session, updates ...Update) (m *schema.Map, err error) {
	release, err := begin(s, session.OpLoadSchema, updates)
	if err != nil {
		return nil, err
	}
	defer release()
	defer w.finish(s, session.OpLoadSchema, time.Now(), &err)

	if !s.IsUnlocked() {
		return nil, lockedError()
	}

	out, qerr := w.query(ctx, s, schema.InformationSchemaQuery)
	switch {
	case errors.Is(qerr, mcpbridge.ErrEmptyResult):
		m = schema.New()
	case qerr != nil:
		return nil, qerr
	default:
		m = schema.Parse(out)
	}
	if m.IsRaw() {
		w.logger.Debug("schema output is not rows, keeping raw text", "session", s.ID)
	}
	s.SetSchema(m)
	return m, nil
}

// Outcome is a finished query.
type Outcome struct {
	SQL    string
	Result present.Result
}

// RunQuery executes text on the session's connection. In ModeAsk the text is
// a question that is first turned into SQL using the cached schema.
func (w *Workflow) RunQuery(ctx context.Context, s *session.Session, mode Mode, text string, updates ...Update) (out Outcome, err error) {
	release, err := begin(s, session.OpQuery, updates)
	if err != nil {
		return Outcome{}, err
	}
	defer release()
	defer w.finish(s, session.OpQuery, time.Now(), &err, "mode", string(mode))

	if !s.IsUnlocked() {
		return Outcome{}, lockedError()
	}
	if strings.TrimSpace(text) == "" {
		return Outcome{}, apperr.New(apperr.EmptyInput, "Please enter a query.")
	}

	sql := strings.TrimSpace(text)
	switch mode {
	case ModeSQL, "":
	case ModeAsk:
		m := s.Schema()
		if m == nil {
			return Outcome{}, apperr.New(apperr.EmptyInput, "Load schema first")
		}
		sql, err = w.generateSQL(ctx, s.APIKey(), text, m)
		if err != nil {
			return Outcome{}, err
		}
	default:
		return Outcome{}, apperr.New(apperr.EmptyInput, fmt.Sprintf("unknown mode %q", mode))
	}

	raw, qerr := w.query(ctx, s, sql)
	var res present.Result
	switch {
	case errors.Is(qerr, mcpbridge.ErrEmptyResult):
		res = present.Empty()
	case qerr != nil:
		return Outcome{SQL: sql}, qerr
	default:
		res = present.Present(raw)
	}
	if res.ParseErr != nil {
		perr := apperr.Wrap(apperr.ParseError, "result is not JSON rows", res.ParseErr)
		w.logger.Debug("showing raw result", "session", s.ID, "error", perr)
	}

	s.SetResult(sql, res)
	return Outcome{SQL: sql, Result: res}, nil
}

func (w *Workflow) generateSQL(ctx context.Context, key, question string, m *schema.Map) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, w.cfg.LLMTimeout)
	defer cancel()

	sql, err := w.llm.GenerateSQL(cctx, key, llm.Request{Question: question, Schema: m.Prompt()})
	if err == nil {
		return sql, nil
	}
	var se *llm.StatusError
	switch {
	case isTimeout(cctx, err):
		return "", apperr.Wrap(apperr.AuthError, fmt.Sprintf("no response from %s within %s", w.llm.Name(), w.cfg.LLMTimeout), deadline(err))
	case errors.As(err, &se) && (se.StatusCode == 401 || se.StatusCode == 403):
		return "", apperr.Wrap(apperr.AuthError, err.Error(), err)
	default:
		return "", apperr.Wrap(apperr.Internal, "SQL generation failed: "+err.Error(), err)
	}
}

// query runs sql on the pooled connection, launching one if the previous was
// dropped. Transport failures and timeouts drop the connection.
func (w *Workflow) query(ctx context.Context, s *session.Session, sql string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, w.cfg.QueryTimeout)
	defer cancel()

	conn := s.Conn()
	if conn == nil {
		p := s.DBParams()
		c, err := w.launchConn(cctx, p)
		if err != nil {
			return "", w.connectionError(cctx, err)
		}
		if !s.PoolConn(p, c) {
			return "", lockedError()
		}
		conn = c
	}

	out, err := conn.Query(cctx, sql)
	if err == nil {
		return out, nil
	}

	switch {
	case errors.Is(err, mcpbridge.ErrEmptyResult):
		return "", err
	case errors.Is(err, mcpbridge.ErrMissingQuery):
		return "", apperr.Wrap(apperr.EmptyInput, "Please enter a query.", err)
	case errors.Is(err, mcpbridge.ErrNoQueryToolFound):
		return "", apperr.Wrap(apperr.ProtocolError, "the SQL bridge does not offer a query tool", err)
	case mcpbridge.ToolFailure(err):
		return "", apperr.Wrap(apperr.ProtocolError, bridgeMessage(err), err)
	}

	s.DropConn(conn)
	if isTimeout(cctx, err) {
		return "", apperr.Wrap(apperr.ProtocolError, fmt.Sprintf("no response from the SQL bridge within %s", w.cfg.QueryTimeout), err)
	}
	return "", apperr.Wrap(apperr.ProtocolError, bridgeMessage(err), err)
}

func (w *Workflow) launchConn(ctx context.Context, p connstr.Params) (session.Conn, error) {
	conn, err := w.launch(ctx, p.String())
	if err != nil {
		w.metrics.ObserveLaunch("error")
		return nil, err
	}
	w.metrics.ObserveLaunch("ok")
	return conn, nil
}

func (w *Workflow) connectionError(ctx context.Context, err error) error {
	if errors.Is(err, mcpbridge.ErrMissingConnection) {
		return apperr.Wrap(apperr.EmptyInput, "Please provide the database connection details.", err)
	}
	if isTimeout(ctx, err) {
		return apperr.Wrap(apperr.ConnectionError, fmt.Sprintf("no response within %s", w.cfg.ProbeTimeout), err)
	}
	return apperr.Wrap(apperr.ConnectionError, bridgeMessage(err), err)
}

func (w *Workflow) finish(s *session.Session, op string, start time.Time, errp *error, attrs ...any) {
	elapsed := time.Since(start)
	outcome := "ok"
	if *errp != nil {
		outcome = string(apperr.KindOf(*errp))
	}
	w.metrics.ObserveOperation(op, outcome, elapsed)

	attrs = append(attrs, "session", s.ID, "op", op, "outcome", outcome, "duration", elapsed.String())
	if *errp != nil {
		w.logger.Warn("operation failed", append(attrs, "error", connstr.Mask((*errp).Error()))...)
		return
	}
	w.logger.Info("operation finished", attrs...)
}

// Update changes session input, such as submitted credentials. Updates run
// only once the operation slot is held, so a rejected submission changes
// nothing.
type Update func(s *session.Session)

func begin(s *session.Session, op string, updates []Update) (func(), error) {
	release, err := s.Begin(op)
	if err != nil {
		return nil, apperr.Wrap(apperr.Busy, "Another action is still running. Please wait.", err)
	}
	for _, u := range updates {
		u(s)
	}
	return release, nil
}

func lockedError() error {
	return apperr.New(apperr.Locked, "Validate your API key and database connection first.")
}

// bridgeMessage is the subprocess text with credentials masked.
func bridgeMessage(err error) string {
	var be *mcpbridge.BridgeError
	if errors.As(err, &be) && be.Message != "" {
		return connstr.Mask(be.Message)
	}
	return connstr.Mask(err.Error())
}

// deadline marks err as a timeout even when the provider reported the
// expired context in its own words.
func deadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
