// Package ui provides the browser console for mcpchat.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
	consoleFeature "github.com/Jnr-NKS/MCP-Chatbot/internal/ui/features/console"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui/notifier"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui/router"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/workflow"
)

// DefaultDatastarSrc is the datastar client bundle matching datastar-go v1.
const DefaultDatastarSrc = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

// sweepInterval is how often idle sessions are looked for.
const sweepInterval = time.Minute

// Server is the main UI server.
type Server struct {
	workflow     *workflow.Workflow
	sessions     *session.Store
	sessionStore *sessions.CookieStore
	notifier     *notifier.Hub
	metrics      *observability.Metrics
	addr         string
	idleTimeout  time.Duration
	datastarSrc  string
	logger       *slog.Logger

	// ready receives the bound address once the listener is up.
	ready chan string
}

// Config holds configuration for the UI server.
type Config struct {
	Workflow      *workflow.Workflow
	Metrics       *observability.Metrics
	Addr          string
	Port          int
	SessionSecret string
	IdleTimeout   time.Duration
	DatastarSrc   string
	Logger        *slog.Logger
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400) // 1 day
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}

	src := cfg.DatastarSrc
	if src == "" {
		src = DefaultDatastarSrc
	}

	hub := notifier.New()
	store := session.NewStore(logger)
	// An open update stream keeps its session alive.
	store.Retain(func(id string) bool { return hub.Listeners(id) > 0 })
	cfg.Metrics.RegisterSessionGauge(store.Len)

	return &Server{
		workflow:     cfg.Workflow,
		sessions:     store,
		sessionStore: sessionStore,
		notifier:     hub,
		metrics:      cfg.Metrics,
		addr:         addr,
		idleTimeout:  cfg.IdleTimeout,
		datastarSrc:  src,
		logger:       logger,
		ready:        make(chan string, 1),
	}
}

// Handler builds the HTTP handler with all middleware and routes.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		observability.LoggingMiddleware(s.logger),
	)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(
		middleware.Recoverer,
		middleware.Compress(5),
	)

	deps := consoleFeature.Deps{
		Workflow:     s.workflow,
		Sessions:     s.sessions,
		SessionStore: s.sessionStore,
		Notifier:     s.notifier,
		DatastarSrc:  s.datastarSrc,
		Logger:       s.logger,
	}
	if err := router.SetupRoutes(r, deps, s.metrics); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the UI server and blocks until the context is cancelled.
// All sessions are closed, and their bridge subprocesses stopped, on exit.
func (s *Server) Serve(ctx context.Context) error {
	defer close(s.ready)

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	url := "http://" + ln.Addr().String()
	s.logger.Info("starting UI server", "addr", url)
	s.ready <- url

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Drop idle sessions
	if s.idleTimeout > 0 {
		eg.Go(func() error {
			return s.sessions.RunSweeper(egctx, s.idleTimeout, sweepInterval)
		})
	}

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down UI server...")
		err := srv.Shutdown(shutdownCtx)
		s.sessions.Close()
		return err
	})

	return eg.Wait()
}

// Ready yields the server URL once Serve is listening. It is closed when
// Serve returns.
func (s *Server) Ready() <-chan string {
	return s.ready
}

// Sessions returns the live session store.
func (s *Server) Sessions() *session.Store {
	return s.sessions
}
