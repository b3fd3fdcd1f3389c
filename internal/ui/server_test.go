package ui

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/testutil"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui/features"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	fixture := features.SetupTestFixture(t)
	metrics := observability.NewMetrics(nil)
	srv := NewServer(Config{
		Workflow:      fixture.Workflow,
		Metrics:       metrics,
		Addr:          "127.0.0.1:0",
		SessionSecret: "test-secret-key-32-bytes-long!!",
		IdleTimeout:   time.Hour,
		Logger:        testutil.NewTestLogger(t),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx) }()

	var url string
	select {
	case url = <-srv.Ready():
	case err := <-errc:
		t.Fatalf("serve failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(url + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(url + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, 1, srv.Sessions().Len())

	resp, err = http.Get(url + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "mcpchat_sessions_active 1")
	assert.Contains(t, string(body), `mcpchat_http_requests_total{method="GET",route="/healthz",status="200"} 1`)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Zero(t, srv.Sessions().Len(), "sessions are closed on shutdown")
}

func TestNewServer_Defaults(t *testing.T) {
	srv := NewServer(Config{Port: 8765, SessionSecret: "s"})
	assert.Equal(t, "127.0.0.1:8765", srv.addr)
	assert.Equal(t, DefaultDatastarSrc, srv.datastarSrc)
}

func TestNewServer_UpdateStreamKeepsSessionAlive(t *testing.T) {
	srv := NewServer(Config{SessionSecret: "s", Logger: testutil.NewTestLogger(t)})
	watched := srv.Sessions().Create()
	idle := srv.Sessions().Create()

	ch := srv.notifier.Subscribe(watched.ID)
	defer srv.notifier.Unsubscribe(watched.ID, ch)

	// A negative idle time expires every session not retained.
	assert.Equal(t, 1, srv.Sessions().Sweep(-time.Hour))
	assert.Equal(t, []string{watched.ID}, srv.Sessions().IDs())
	assert.NotEqual(t, idle.ID, srv.Sessions().IDs()[0])
}
