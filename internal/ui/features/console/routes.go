// Package console provides the credential gate and query console feature.
package console

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes configures routes for the console feature.
func SetupRoutes(router chi.Router, deps Deps) error {
	handlers := NewHandlers(deps)

	router.Get("/", handlers.ConsolePage)
	router.Get("/updates", handlers.ConsoleUpdates)

	router.Route("/api", func(r chi.Router) {
		r.Post("/llm/validate", handlers.ValidateLLM)
		r.Post("/db/validate", handlers.ValidateDB)
		r.Post("/schema/load", handlers.LoadSchema)
		r.Post("/query/run", handlers.RunQuery)
		r.Get("/result.csv", handlers.ResultCSV)
	})

	return nil
}
