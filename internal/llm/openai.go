package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI speaks the OpenAI-compatible API through the official SDK.
type OpenAI struct {
	model       string
	temperature float64
	client      openai.Client
}

// NewOpenAI returns an OpenAI-compatible provider. The base URL may be given
// with or without its /v1 suffix.
func NewOpenAI(cfg Config) *OpenAI {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenAI{
		model:       model,
		temperature: cfg.Temperature,
		client: openai.NewClient(
			option.WithBaseURL(apiBase(cfg.BaseURL)),
			option.WithRequestTimeout(timeout),
			// One call per validation, never retried.
			option.WithMaxRetries(0),
		),
	}
}

func apiBase(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultOpenAIURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

// Ping lists models, the cheapest authenticated call the API offers.
func (o *OpenAI) Ping(ctx context.Context, key string) error {
	key, err := requireKey(key)
	if err != nil {
		return err
	}
	if _, err := o.client.Models.List(ctx, option.WithAPIKey(key)); err != nil {
		return statusError("list models", err)
	}
	return nil
}

func (o *OpenAI) GenerateSQL(ctx context.Context, key string, req Request) (string, error) {
	key, err := requireKey(key)
	if err != nil {
		return "", err
	}
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(req)),
		},
		Temperature: openai.Float(o.temperature),
	}, option.WithAPIKey(key))
	if err != nil {
		return "", statusError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	sql := StripMarkdownSQL(resp.Choices[0].Message.Content)
	if sql == "" {
		return "", ErrEmptySQL
	}
	return sql, nil
}

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// statusError turns an SDK API error into a *StatusError carrying the
// provider's message verbatim. Transport errors are wrapped as is.
func statusError(op string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = strings.ToLower(http.StatusText(apiErr.StatusCode))
	}
	return &StatusError{StatusCode: apiErr.StatusCode, Message: msg}
}
