// Package llm validates LLM API keys and turns questions into SQL.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names accepted in configuration.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Defaults applied when configuration leaves a field empty.
const (
	DefaultGeminiModel = "gemini-1.5-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultOpenAIURL   = "https://api.openai.com"
	DefaultTimeout     = 20 * time.Second
)

var (
	// ErrEmptyKey is returned when no API key was supplied.
	ErrEmptyKey = errors.New("API key is required")
	// ErrEmptySQL is returned when the model answered without SQL.
	ErrEmptySQL = errors.New("model returned empty SQL")
)

// Request is a natural-language question with schema context.
type Request struct {
	Question string
	// Schema is the rendered schema map, one table per line.
	Schema string
}

// Provider talks to one LLM service. The API key is passed per call
// because every session supplies its own.
type Provider interface {
	Name() string
	// Ping makes exactly one minimal call with key. A nil error means the key works.
	Ping(ctx context.Context, key string) error
	// GenerateSQL asks the model for a single SQL statement answering req.
	GenerateSQL(ctx context.Context, key string, req Request) (string, error)
}

// Config selects and tunes a provider.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
}

// New returns the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderGemini:
		return NewGemini(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// MaskKey shortens key for logs, keeping a short prefix and suffix.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 12 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func requireKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}
