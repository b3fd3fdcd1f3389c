// Package router sets up HTTP routes for the UI server.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
	consoleFeature "github.com/Jnr-NKS/MCP-Chatbot/internal/ui/features/console"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui/resources"
)

// SetupRoutes configures all routes for the UI server.
func SetupRoutes(router chi.Router, deps consoleFeature.Deps, metrics *observability.Metrics) error {
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	if metrics != nil {
		router.Handle("/metrics", metrics.Handler())
	}

	// Static assets
	router.Handle(resources.Prefix+"*", resources.Handler())

	// Feature routes
	return consoleFeature.SetupRoutes(router, deps)
}
