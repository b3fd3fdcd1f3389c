package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// generator is one model session bound to an API key.
type generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Close() error
}

// Gemini uses the Google Generative AI SDK.
type Gemini struct {
	model       string
	temperature float32
	open        func(ctx context.Context, key, model string, temperature float32) (generator, error)
}

// NewGemini returns a Gemini provider.
func NewGemini(cfg Config) *Gemini {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{model: model, temperature: float32(cfg.Temperature), open: openGenAI}
}

func (g *Gemini) Name() string { return ProviderGemini }

// Ping sends a single "ping" prompt.
func (g *Gemini) Ping(ctx context.Context, key string) error {
	_, err := g.generate(ctx, key, "", "ping")
	return err
}

func (g *Gemini) GenerateSQL(ctx context.Context, key string, req Request) (string, error) {
	out, err := g.generate(ctx, key, systemPrompt, userPrompt(req))
	if err != nil {
		return "", err
	}
	sql := StripMarkdownSQL(out)
	if sql == "" {
		return "", ErrEmptySQL
	}
	return sql, nil
}

func (g *Gemini) generate(ctx context.Context, key, system, prompt string) (string, error) {
	key, err := requireKey(key)
	if err != nil {
		return "", err
	}
	gen, err := g.open(ctx, key, g.model, g.temperature)
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}
	defer func() { _ = gen.Close() }()
	return gen.Generate(ctx, system, prompt)
}

type genaiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func openGenAI(ctx context.Context, key, model string, temperature float32) (generator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, err
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(temperature)
	return &genaiGenerator{client: client, model: m}, nil
}

func (g *genaiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if system != "" {
		g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
		break
	}
	return b.String(), nil
}

func (g *genaiGenerator) Close() error { return g.client.Close() }
