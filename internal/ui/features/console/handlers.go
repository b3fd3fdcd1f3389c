package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/apperr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/present"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui/notifier"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui/views"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/workflow"
)

const (
	cookieName   = "mcpchat"
	sessionIDKey = "sid"
)

// Deps are the collaborators the console needs.
type Deps struct {
	Workflow     *workflow.Workflow
	Sessions     *session.Store
	SessionStore sessions.Store
	Notifier     *notifier.Hub
	DatastarSrc  string
	Logger       *slog.Logger
}

// Handlers provides HTTP handlers for the console feature.
type Handlers struct {
	wf           *workflow.Workflow
	sessions     *session.Store
	sessionStore sessions.Store
	notifier     *notifier.Hub
	datastarSrc  string
	logger       *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		wf:           deps.Workflow,
		sessions:     deps.Sessions,
		sessionStore: deps.SessionStore,
		notifier:     deps.Notifier,
		datastarSrc:  deps.DatastarSrc,
		logger:       logger,
	}
}

// ConsolePage renders the full page for the caller's session.
func (h *Handlers) ConsolePage(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	v := s.Snapshot()
	page := views.PageData{
		Title:       "Console",
		DatastarSrc: h.datastarSrc,
		Signals:     initialSignals(v),
		App:         views.NewAppData(v, h.wf.Provider()),
	}
	if err := views.Page(page).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ConsoleUpdates is the long-lived SSE stream of a session. It re-renders
// #app whenever another request changes the session. Nothing is sent on
// connect since the page already carries the current state.
func (h *Handlers) ConsoleUpdates(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sse := datastar.NewSSE(w, r)

	updates := h.notifier.Subscribe(s.ID)
	defer h.notifier.Unsubscribe(s.ID, updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := h.patchApp(sse, s); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

// ValidateLLM checks the submitted API key.
func (h *Handlers) ValidateLLM(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Validating API key…", func(ctx context.Context, s *session.Session, sig Signals) session.Message {
		if err := h.wf.ValidateLLM(ctx, s, sig.update(checkKey)); err != nil {
			return errorMessage(err)
		}
		return success("✅ API key is valid.")
	})
}

// ValidateDB tests the submitted database credentials.
func (h *Handlers) ValidateDB(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Testing database connection…", func(ctx context.Context, s *session.Session, sig Signals) session.Message {
		if err := h.wf.ValidateDB(ctx, s, sig.update(checkDB)); err != nil {
			return errorMessage(err)
		}
		if sig.Database != "" && sig.Server != "" && sig.ConnectionString == "" {
			return success(fmt.Sprintf("✅ Connected to %s on %s.", sig.Database, sig.Server))
		}
		return success("✅ Database connection successful.")
	})
}

// LoadSchema loads and caches the schema map.
func (h *Handlers) LoadSchema(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Loading schema…", func(ctx context.Context, s *session.Session, sig Signals) session.Message {
		m, err := h.wf.LoadSchema(ctx, s, sig.update(checkNone))
		if err != nil {
			return errorMessage(err)
		}
		if m.IsRaw() {
			return session.Message{Level: string(views.BannerInfo), Text: "ℹ️ Schema returned as raw text."}
		}
		return success(fmt.Sprintf("✅ Loaded %d tables.", m.Len()))
	})
}

// RunQuery executes the submitted query in the selected mode.
func (h *Handlers) RunQuery(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Running query…", func(ctx context.Context, s *session.Session, sig Signals) session.Message {
		mode, err := workflow.ParseMode(sig.Mode)
		if err != nil {
			return session.Message{Level: string(views.BannerWarning), Text: "⚠️ " + err.Error()}
		}
		out, err := h.wf.RunQuery(ctx, s, mode, sig.Query, sig.update(checkNone))
		if err != nil {
			return errorMessage(err)
		}
		return success(out.Result.Message())
	})
}

// ResultCSV downloads the last table result.
func (h *Handlers) ResultCSV(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	res, _, ok := s.Result()
	if !ok || res.Kind != present.KindTable {
		http.Error(w, "no table result to export", http.StatusNotFound)
		return
	}
	body, err := res.CSV()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="query.csv"`)
	_, _ = w.Write(body)
}

type actionFunc func(ctx context.Context, s *session.Session, sig Signals) session.Message

// action reads the form signals, runs fn and patches #app. fn passes the
// signals on to the workflow, which stores them once the session is free.
// Other streams of the same session are pinged afterwards.
func (h *Handlers) action(w http.ResponseWriter, r *http.Request, activity string, fn actionFunc) {
	// Read signals BEFORE creating SSE (SSE consumes the request body)
	var sig Signals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		sse := datastar.NewSSE(w, r)
		_ = sse.ConsoleError(fmt.Errorf("failed to read signals: %w", err))
		return
	}

	s, err := h.session(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sse := datastar.NewSSE(w, r)
	_ = sse.PatchElementTempl(views.Activity(activity))

	msg := fn(r.Context(), s, sig)
	if !errors.Is(r.Context().Err(), context.Canceled) {
		s.SetMessages(msg)
	}

	if err := h.patchApp(sse, s); err != nil {
		_ = sse.ConsoleError(err)
	}
	h.notifier.Notify(s.ID)
}

func (h *Handlers) patchApp(sse *datastar.ServerSentEventGenerator, s *session.Session) error {
	return sse.PatchElementTempl(views.App(views.NewAppData(s.Snapshot(), h.wf.Provider())))
}

// session resolves the caller's session from the cookie, starting a new one
// when the cookie is missing, invalid or expired. Must run before any write.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	// Get returns a fresh session alongside a decode error; that is fine here.
	cs, _ := h.sessionStore.Get(r, cookieName)
	id, _ := cs.Values[sessionIDKey].(string)

	s, created := h.sessions.GetOrCreate(id)
	if created {
		cs.Values[sessionIDKey] = s.ID
		if err := cs.Save(r, w); err != nil {
			return nil, fmt.Errorf("save session cookie: %w", err)
		}
	}
	return s, nil
}

func success(text string) session.Message {
	return session.Message{Level: string(views.BannerSuccess), Text: text}
}

func errorMessage(err error) session.Message {
	level := views.BannerError
	switch apperr.KindOf(err) {
	case apperr.EmptyInput, apperr.Locked:
		level = views.BannerWarning
	case apperr.Busy:
		level = views.BannerInfo
	}
	return session.Message{Level: string(level), Text: apperr.UserMessage(err)}
}
