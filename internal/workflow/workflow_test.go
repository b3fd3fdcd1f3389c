package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/apperr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/connstr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/llm"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/mcpbridge"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/present"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/schema"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/testutil"
)

var creds = connstr.Params{Server: "s", Database: "d", Username: "u", Password: "p"}

const scenario1 = "Driver={ODBC Driver 18 for SQL Server};Server=s,1433;Database=d;Uid=u;Pwd=p;Encrypt=yes;TrustServerCertificate=no;Connection Timeout=30;"

func newWorkflow(t *testing.T, p *fakeProvider, l *fakeLauncher) *Workflow {
	t.Helper()
	return New(p, l.launch, Config{}, observability.NewMetrics(prometheus.NewRegistry()), testutil.NewTestLogger(t))
}

func unlockedSession(t *testing.T, w *Workflow) *session.Session {
	t.Helper()
	s := session.New("test")
	s.SetAPIKey("key")
	s.SetDBParams(creds)
	require.NoError(t, w.ValidateLLM(context.Background(), s))
	require.NoError(t, w.ValidateDB(context.Background(), s))
	require.True(t, s.IsUnlocked())
	return s
}

func TestValidateLLM(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		pingErr  error
		kind     apperr.Kind
		contains string
		pings    int
	}{
		{name: "valid", key: "key", pings: 1},
		{name: "empty", key: "   ", kind: apperr.EmptyInput, pings: 0},
		{
			name:     "rejected",
			key:      "bad",
			pingErr:  &llm.StatusError{StatusCode: 401, Message: "Incorrect API key provided"},
			kind:     apperr.AuthError,
			contains: "401 Unauthorized: Incorrect API key provided",
			pings:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{pingErr: tt.pingErr}
			w := newWorkflow(t, p, &fakeLauncher{})
			s := session.New("x")
			s.SetAPIKey(tt.key)

			err := w.ValidateLLM(context.Background(), s)
			assert.Len(t, p.pings, tt.pings)
			llmOK, _ := s.Flags()
			if tt.kind == "" {
				require.NoError(t, err)
				assert.True(t, llmOK)
				assert.Equal(t, session.LLMValidated, s.State())
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.contains)
			assert.False(t, llmOK)
		})
	}
}

func TestValidateLLM_Timeout(t *testing.T) {
	p := &fakeProvider{block: true}
	w := New(p, (&fakeLauncher{}).launch, Config{LLMTimeout: 10 * time.Millisecond}, nil, testutil.NewTestLogger(t))
	s := session.New("x")
	s.SetAPIKey("key")

	err := w.ValidateLLM(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthError, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "within 10ms")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, apperr.UserMessage(err), "Invalid API key", "a slow provider is not a bad key")
	assert.False(t, s.IsUnlocked())
}

func TestValidateDB_Connected(t *testing.T) {
	l := &fakeLauncher{}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := session.New("x")
	s.SetDBParams(creds)

	require.NoError(t, w.ValidateDB(context.Background(), s))

	require.Equal(t, []string{scenario1}, l.connStrs)
	assert.Equal(t, []string{ProbeQuery}, l.conns[0].sqls)
	assert.Same(t, l.conns[0], s.Conn(), "probe connection is pooled")
	assert.Equal(t, session.DBValidated, s.State())
}

func TestValidateDB_RawConnectionString(t *testing.T) {
	l := &fakeLauncher{}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := session.New("x")
	s.SetDBParams(connstr.Params{Raw: " Server=tcp:x;Database=y; "})

	require.NoError(t, w.ValidateDB(context.Background(), s))
	assert.Equal(t, []string{"Server=tcp:x;Database=y;"}, l.connStrs)
}

func TestValidateDB_MissingFields(t *testing.T) {
	l := &fakeLauncher{}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := session.New("x")
	s.SetDBParams(connstr.Params{Server: "s", Username: "u"})

	err := w.ValidateDB(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, apperr.EmptyInput, apperr.KindOf(err))
	assert.Contains(t, apperr.UserMessage(err), "database, password")
	assert.Zero(t, l.launches())
}

func TestValidateDB_Failures(t *testing.T) {
	loginFailed := func(context.Context, string) (string, error) {
		return "", &mcpbridge.BridgeError{Op: mcpbridge.OpToolResult, Message: "Login failed for user 'u'. Pwd=p"}
	}
	tests := []struct {
		name     string
		launcher *fakeLauncher
		kind     apperr.Kind
		contains string
	}{
		{
			name:     "launch fails",
			launcher: &fakeLauncher{err: &mcpbridge.BridgeError{Op: mcpbridge.OpLaunch, Message: "executable file not found"}},
			kind:     apperr.ConnectionError,
			contains: "executable file not found",
		},
		{
			name:     "probe rejected",
			launcher: &fakeLauncher{next: func() *fakeConn { return &fakeConn{query: loginFailed} }},
			kind:     apperr.ConnectionError,
			contains: "Login failed for user 'u'. Pwd=***",
		},
		{
			name: "no query tool",
			launcher: &fakeLauncher{next: func() *fakeConn {
				return &fakeConn{query: func(context.Context, string) (string, error) { return "", mcpbridge.ErrNoQueryToolFound }}
			}},
			kind:     apperr.ProtocolError,
			contains: "query tool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{}
			w := newWorkflow(t, p, tt.launcher)
			s := session.New("x")
			s.SetAPIKey("key")
			require.NoError(t, w.ValidateLLM(context.Background(), s))
			s.SetDBParams(creds)

			err := w.ValidateDB(context.Background(), s)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Contains(t, apperr.UserMessage(err), tt.contains)

			assert.False(t, s.IsUnlocked())
			assert.Nil(t, s.Conn())
			for _, c := range tt.launcher.conns {
				assert.Equal(t, 1, c.closeCount(), "failed subprocess is closed")
			}

			_, qerr := w.RunQuery(context.Background(), s, ModeSQL, "SELECT 1")
			assert.Equal(t, apperr.Locked, apperr.KindOf(qerr))
		})
	}
}

func TestValidateDB_EmptyProbeResultIsConnected(t *testing.T) {
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(context.Context, string) (string, error) { return "", mcpbridge.ErrEmptyResult }}
	}}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := session.New("x")
	s.SetDBParams(creds)
	require.NoError(t, w.ValidateDB(context.Background(), s))
}

func TestValidateDB_RevalidateSpawnsFresh(t *testing.T) {
	l := &fakeLauncher{}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := unlockedSession(t, w)

	require.NoError(t, w.ValidateDB(context.Background(), s))
	require.Len(t, l.conns, 2)
	assert.Equal(t, 1, l.conns[0].closeCount())
	assert.Same(t, l.conns[1], s.Conn())
}

func TestGate_QueryUnreachableWhileLocked(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, w *Workflow, s *session.Session)
	}{
		{"fresh session", func(*testing.T, *Workflow, *session.Session) {}},
		{"llm only", func(t *testing.T, w *Workflow, s *session.Session) {
			s.SetAPIKey("key")
			require.NoError(t, w.ValidateLLM(context.Background(), s))
		}},
		{"db only", func(t *testing.T, w *Workflow, s *session.Session) {
			s.SetDBParams(creds)
			require.NoError(t, w.ValidateDB(context.Background(), s))
		}},
		{"key changed after unlock", func(t *testing.T, w *Workflow, s *session.Session) {
			s.SetAPIKey("key")
			s.SetDBParams(creds)
			require.NoError(t, w.ValidateLLM(context.Background(), s))
			require.NoError(t, w.ValidateDB(context.Background(), s))
			s.SetAPIKey("new-key")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLauncher{}
			w := newWorkflow(t, &fakeProvider{}, l)
			s := session.New("x")
			tt.setup(t, w, s)
			before := 0
			for _, c := range l.conns {
				before += len(c.sqls)
			}

			_, err := w.RunQuery(context.Background(), s, ModeSQL, "SELECT * FROM t")
			assert.Equal(t, apperr.Locked, apperr.KindOf(err))
			_, err = w.LoadSchema(context.Background(), s)
			assert.Equal(t, apperr.Locked, apperr.KindOf(err))

			after := 0
			for _, c := range l.conns {
				after += len(c.sqls)
			}
			assert.Equal(t, before, after, "no SQL reaches the bridge while locked")
		})
	}
}

func TestRunQuery_Table(t *testing.T) {
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(_ context.Context, sql string) (string, error) {
			if sql == ProbeQuery {
				return `[{"":1}]`, nil
			}
			return `[{"a":1},{"a":2}]`, nil
		}}
	}}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := unlockedSession(t, w)

	out, err := w.RunQuery(context.Background(), s, ModeSQL, "SELECT a FROM t")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM t", out.SQL)
	require.Equal(t, present.KindTable, out.Result.Kind)
	assert.Equal(t, []string{"a"}, out.Result.Table.Columns)

	csv, err := out.Result.CSV()
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n2\n", string(csv))

	stored, sql, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, "SELECT a FROM t", sql)
	assert.Equal(t, present.KindTable, stored.Kind)
	assert.Equal(t, 1, l.launches(), "queries reuse the pooled connection")
	assert.Equal(t, session.FullyValidated, s.State())
}

func TestRunQuery_EmptyContentIsSuccess(t *testing.T) {
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(_ context.Context, sql string) (string, error) {
			if sql == ProbeQuery {
				return "1", nil
			}
			return "", mcpbridge.ErrEmptyResult
		}}
	}}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := unlockedSession(t, w)

	out, err := w.RunQuery(context.Background(), s, ModeSQL, "UPDATE t SET a = 1")
	require.NoError(t, err)
	assert.Equal(t, present.KindEmpty, out.Result.Kind)
	assert.Equal(t, "✅ Query executed, but no results.", out.Result.Message())
}

func TestRunQuery_RawTextFallback(t *testing.T) {
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(context.Context, string) (string, error) { return "3 rows affected", nil }}
	}}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := unlockedSession(t, w)

	out, err := w.RunQuery(context.Background(), s, ModeSQL, "DELETE FROM t")
	require.NoError(t, err)
	assert.Equal(t, present.KindText, out.Result.Kind)
	assert.Equal(t, "3 rows affected", out.Result.Raw)
}

func TestRunQuery_EmptyInput(t *testing.T) {
	w := newWorkflow(t, &fakeProvider{}, &fakeLauncher{})
	s := unlockedSession(t, w)

	_, err := w.RunQuery(context.Background(), s, ModeSQL, "  ")
	assert.Equal(t, apperr.EmptyInput, apperr.KindOf(err))
}

func TestRunQuery_ToolErrorKeepsConnection(t *testing.T) {
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(_ context.Context, sql string) (string, error) {
			if sql == ProbeQuery {
				return "1", nil
			}
			return "", &mcpbridge.BridgeError{Op: mcpbridge.OpToolResult, Message: "Invalid object name 'nope'."}
		}}
	}}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := unlockedSession(t, w)

	_, err := w.RunQuery(context.Background(), s, ModeSQL, "SELECT * FROM nope")
	require.Error(t, err)
	assert.Equal(t, "❌ SQL bridge error: Invalid object name 'nope'.", apperr.UserMessage(err))
	assert.NotNil(t, s.Conn())
	assert.True(t, s.IsUnlocked())
}

func TestRunQuery_TimeoutDropsAndRespawns(t *testing.T) {
	calls := 0
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(ctx context.Context, sql string) (string, error) {
			if sql == ProbeQuery {
				return "1", nil
			}
			calls++
			if calls == 1 {
				<-ctx.Done()
				return "", &mcpbridge.BridgeError{Op: mcpbridge.OpCallTool, Message: ctx.Err().Error(), Err: ctx.Err()}
			}
			return `[{"ok":true}]`, nil
		}}
	}}
	w := New(&fakeProvider{}, l.launch, Config{QueryTimeout: 10 * time.Millisecond}, nil, testutil.NewTestLogger(t))
	s := unlockedSession(t, w)
	first := s.Conn()

	_, err := w.RunQuery(context.Background(), s, ModeSQL, "WAITFOR DELAY '00:10'")
	require.Error(t, err)
	assert.Equal(t, apperr.ProtocolError, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "within 10ms")
	assert.Nil(t, s.Conn(), "timed out connection is dropped")
	assert.Equal(t, 1, first.(*fakeConn).closeCount())
	assert.True(t, s.IsUnlocked(), "flags survive a dropped connection")

	out, err := w.RunQuery(context.Background(), s, ModeSQL, "SELECT 1 AS ok")
	require.NoError(t, err)
	assert.Equal(t, present.KindTable, out.Result.Kind)
	assert.Equal(t, 2, l.launches())
}

func TestRunQuery_Busy(t *testing.T) {
	w := newWorkflow(t, &fakeProvider{}, &fakeLauncher{})
	s := unlockedSession(t, w)

	release, err := s.Begin(session.OpLoadSchema)
	require.NoError(t, err)
	defer release()

	_, err = w.RunQuery(context.Background(), s, ModeSQL, "SELECT 1")
	assert.Equal(t, apperr.Busy, apperr.KindOf(err))
	assert.ErrorIs(t, err, session.ErrBusy)
}

func TestUpdatesApplyOnlyWithSlot(t *testing.T) {
	w := newWorkflow(t, &fakeProvider{}, &fakeLauncher{})
	s := unlockedSession(t, w)
	conn := s.Conn()

	release, err := s.Begin(session.OpQuery)
	require.NoError(t, err)

	changeKey := func(s *session.Session) { s.SetAPIKey("") }
	err = w.ValidateLLM(context.Background(), s, changeKey)
	assert.Equal(t, apperr.Busy, apperr.KindOf(err))
	_, err = w.LoadSchema(context.Background(), s, func(s *session.Session) { s.SetDBParams(connstr.Params{}) })
	assert.Equal(t, apperr.Busy, apperr.KindOf(err))

	assert.True(t, s.IsUnlocked(), "rejected updates are not applied")
	assert.Same(t, conn, s.Conn())
	release()

	err = w.ValidateLLM(context.Background(), s, changeKey)
	assert.Equal(t, apperr.EmptyInput, apperr.KindOf(err))
	assert.False(t, s.IsUnlocked())
}

func TestLoadSchema_EmptyDatabase(t *testing.T) {
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(context.Context, string) (string, error) { return "[]", nil }}
	}}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := unlockedSession(t, w)

	m, err := w.LoadSchema(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, m.IsRaw())
	assert.True(t, m.Empty())
	assert.Empty(t, m.Prompt())
}

func TestLoadSchema(t *testing.T) {
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(_ context.Context, sql string) (string, error) {
			if sql == schema.InformationSchemaQuery {
				return `[{"TABLE_SCHEMA":"dbo","TABLE_NAME":"users","COLUMN_NAME":"id"}]`, nil
			}
			return "1", nil
		}}
	}}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := unlockedSession(t, w)

	m, err := w.LoadSchema(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"dbo.users"}, m.Tables())
	assert.Same(t, m, s.Schema())
	assert.Equal(t, session.SchemaLoaded, s.State())
}

func TestLoadSchema_RawOutput(t *testing.T) {
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(context.Context, string) (string, error) { return "dbo.users: id, name", nil }}
	}}
	w := newWorkflow(t, &fakeProvider{}, l)
	s := unlockedSession(t, w)

	m, err := w.LoadSchema(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, m.IsRaw())
	assert.Equal(t, "dbo.users: id, name", m.Raw)
}

func TestRunQuery_Ask(t *testing.T) {
	var ran []string
	l := &fakeLauncher{next: func() *fakeConn {
		return &fakeConn{query: func(_ context.Context, sql string) (string, error) {
			ran = append(ran, sql)
			if sql == schema.InformationSchemaQuery {
				return `[["dbo","users","id"]]`, nil
			}
			return `[{"n":3}]`, nil
		}}
	}}
	p := &fakeProvider{sql: "SELECT COUNT(*) AS n FROM dbo.users"}
	w := newWorkflow(t, p, l)
	s := unlockedSession(t, w)

	_, err := w.RunQuery(context.Background(), s, ModeAsk, "how many users?")
	require.Error(t, err)
	assert.Equal(t, "⚠️ Load schema first", apperr.UserMessage(err))
	assert.Empty(t, p.reqs)

	_, err = w.LoadSchema(context.Background(), s)
	require.NoError(t, err)

	out, err := w.RunQuery(context.Background(), s, ModeAsk, "how many users?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM dbo.users", out.SQL)
	require.Len(t, p.reqs, 1)
	assert.Equal(t, "how many users?", p.reqs[0].Question)
	assert.Equal(t, "dbo.users(id)\n", p.reqs[0].Schema)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM dbo.users", ran[len(ran)-1])
}

func TestRunQuery_AskGenerationFails(t *testing.T) {
	p := &fakeProvider{genErr: &llm.StatusError{StatusCode: 401, Message: "key revoked"}}
	w := newWorkflow(t, p, &fakeLauncher{})
	s := unlockedSession(t, w)
	s.SetSchema(schema.New())

	_, err := w.RunQuery(context.Background(), s, ModeAsk, "anything")
	assert.Equal(t, apperr.AuthError, apperr.KindOf(err))

	p.genErr = errors.New("model overloaded")
	_, err = w.RunQuery(context.Background(), s, ModeAsk, "anything")
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.True(t, strings.HasPrefix(apperr.UserMessage(err), "❌ SQL generation failed"))
}

func TestFinish_MasksSecrets(t *testing.T) {
	logger, buf := testutil.NewCaptureLogger(t)
	l := &fakeLauncher{err: &mcpbridge.BridgeError{Op: mcpbridge.OpLaunch, Message: "bad arg Pwd=hunter2;"}}
	w := New(&fakeProvider{}, l.launch, Config{}, nil, logger)
	s := session.New("x")
	s.SetAPIKey("AIzaSyA-secret-key-1234")
	s.SetDBParams(connstr.Params{Server: "s", Database: "d", Username: "u", Password: "hunter2"})

	require.NoError(t, w.ValidateLLM(context.Background(), s))
	require.Error(t, w.ValidateDB(context.Background(), s))

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "secret-key")
	assert.Contains(t, out, "AIza...1234")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSQL, m)
	m, err = ParseMode("ASK")
	require.NoError(t, err)
	assert.Equal(t, ModeAsk, m)
	_, err = ParseMode("explain")
	assert.Error(t, err)
}
