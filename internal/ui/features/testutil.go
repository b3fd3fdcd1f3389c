// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/llm"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/mcpbridge"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/testutil"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui/notifier"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/workflow"
)

// ValidKey is the only API key the fake provider accepts.
const ValidKey = "sk-test-valid-key-0123456789"

// FakeProvider accepts ValidKey and answers every question with SQL.
type FakeProvider struct {
	SQL string
}

// Name implements llm.Provider.
func (p *FakeProvider) Name() string { return "fake" }

// Ping implements llm.Provider.
func (p *FakeProvider) Ping(_ context.Context, key string) error {
	if key != ValidKey {
		return &llm.StatusError{StatusCode: http.StatusUnauthorized, Message: "API key not valid"}
	}
	return nil
}

// GenerateSQL implements llm.Provider.
func (p *FakeProvider) GenerateSQL(ctx context.Context, key string, _ llm.Request) (string, error) {
	if err := p.Ping(ctx, key); err != nil {
		return "", err
	}
	return p.SQL, nil
}

// FakeBridge is an in-process stand-in for the SQL tool subprocess.
// Responses maps SQL text to the tool's text output; unknown SQL fails
// as a tool error.
type FakeBridge struct {
	mu        sync.Mutex
	Responses map[string]string
	Refuse    bool
	Launches  []string
}

// NewFakeBridge answers the connection probe and "SELECT 1 AS a".
func NewFakeBridge() *FakeBridge {
	return &FakeBridge{Responses: map[string]string{
		workflow.ProbeQuery: `[{"": 1}]`,
		"SELECT 1 AS a":     `[{"a": 1}]`,
	}}
}

// Dial implements mcpbridge.DialFunc.
func (b *FakeBridge) Dial(_ string, env []string, args ...string) (mcpbridge.ToolClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Launches = append(b.Launches, strings.Join(append(append([]string(nil), args...), env...), " "))
	if b.Refuse {
		return nil, errors.New("login failed for user")
	}
	return &fakeToolClient{bridge: b}, nil
}

// LaunchCount reports how many subprocesses were started.
func (b *FakeBridge) LaunchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Launches)
}

func (b *FakeBridge) respond(sql string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out, ok := b.Responses[sql]
	return out, ok
}

type fakeToolClient struct {
	bridge *FakeBridge
}

func (c *fakeToolClient) Initialize(context.Context, mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return &mcp.InitializeResult{}, nil
}

func (c *fakeToolClient) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	tool := mcp.Tool{Name: "execute_query"}
	tool.InputSchema.Properties = map[string]any{"query": map[string]any{"type": "string"}}
	return &mcp.ListToolsResult{Tools: []mcp.Tool{tool}}, nil
}

func (c *fakeToolClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	sql, _ := args["query"].(string)
	out, ok := c.bridge.respond(sql)
	if !ok {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "Incorrect syntax near '" + sql + "'"}},
			IsError: true,
		}, nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: out}}}, nil
}

func (c *fakeToolClient) Close() error { return nil }

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Provider     *FakeProvider
	Bridge       *FakeBridge
	Workflow     *workflow.Workflow
	Sessions     *session.Store
	Notifier     *notifier.Hub
	SessionStore *sessions.CookieStore
}

// SetupTestFixture wires a workflow to the fake provider and bridge.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()

	logger := testutil.NewTestLogger(t)
	provider := &FakeProvider{SQL: "SELECT 1 AS a"}
	bridge := NewFakeBridge()
	launcher := mcpbridge.NewLauncherWithDial(mcpbridge.Options{
		Command:        "mssql-mcp",
		ConnectionFlag: "--connection-string",
	}, bridge.Dial, logger)

	store := session.NewStore(logger)
	t.Cleanup(store.Close)

	return &TestFixture{
		Provider:     provider,
		Bridge:       bridge,
		Workflow:     workflow.New(provider, workflow.FromLauncher(launcher), workflow.Config{}, nil, logger),
		Sessions:     store,
		Notifier:     notifier.New(),
		SessionStore: NewTestSessionStore(),
	}
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}

// Client replays the cookies of earlier responses, like a browser tab.
type Client struct {
	cookies []*http.Cookie
}

// Do runs the request through handler and keeps any new cookies.
func (c *Client) Do(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return rec
}

// PostSignals builds a datastar action request carrying signals as JSON.
func PostSignals(target, signals string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(signals))
	req.Header.Set("Content-Type", "application/json")
	return req
}
