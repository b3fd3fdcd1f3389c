package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/llm"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.UI.Port < 0 || c.UI.Port > 65535 {
		errs = append(errs, fmt.Errorf("ui.port must be between 0 and 65535, got %d", c.UI.Port))
	}
	if c.UI.SessionIdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ui.session_idle_timeout must be positive"))
	}

	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderGemini, llm.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported (want %s or %s)",
			c.LLM.Provider, llm.ProviderGemini, llm.ProviderOpenAI))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2"))
	}

	if strings.TrimSpace(c.Bridge.Command) == "" {
		errs = append(errs, fmt.Errorf("bridge.command is required"))
	}
	if c.Bridge.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("bridge.probe_timeout must be positive"))
	}
	if c.Bridge.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("bridge.query_timeout must be positive"))
	}

	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not supported (want text or json)", c.Log.Format))
	}

	return errors.Join(errs...)
}
