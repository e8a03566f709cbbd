// Package llm adapts hosted language models to the single operation the
// intent parser needs: send one prompt, get one text completion back.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelResponse is the normalized result of a model call.
type ModelResponse struct {
	Text string
}

// LanguageModel generates a structured (JSON) completion for a prompt.
type LanguageModel interface {
	GenerateStructured(ctx context.Context, prompt string) (ModelResponse, error)
}

// ErrEmptyResponse is returned when the provider answered with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Provider names accepted by New.
const (
	ProviderNone      = "none"
	ProviderGoogleAI  = "googleai"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures a provider. The model name is resolved once
// here; adapters never fall back to a different model.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// DefaultModel returns the model used when Config.Model is empty.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderGoogleAI:
		return "gemini-1.5-flash"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	default:
		return ""
	}
}

// New builds the configured model. It returns (nil, nil) when the provider
// is "none" or no API key is set, in which case callers parse locally.
func New(ctx context.Context, cfg Config) (LanguageModel, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == ProviderNone || cfg.APIKey == "" {
		return nil, nil
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel(provider)
	}

	var (
		m   llms.Model
		err error
	)
	switch provider {
	case ProviderGoogleAI:
		m, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(model),
		)
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err = openai.New(opts...)
	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		m, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create %s client: %w", provider, err)
	}

	return NewLangChain(m, cfg.Timeout), nil
}

// LangChain adapts any langchaingo model to LanguageModel.
type LangChain struct {
	model   llms.Model
	timeout time.Duration
}

// NewLangChain wraps model. A zero timeout means no per-call deadline beyond ctx.
func NewLangChain(model llms.Model, timeout time.Duration) *LangChain {
	return &LangChain{model: model, timeout: timeout}
}

// GenerateStructured sends prompt at temperature zero and returns the trimmed completion.
func (l *LangChain) GenerateStructured(ctx context.Context, prompt string) (ModelResponse, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt,
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return ModelResponse{}, fmt.Errorf("llm: generate: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ModelResponse{}, ErrEmptyResponse
	}
	return ModelResponse{Text: text}, nil
}
