// Package llm builds the language model used by the chat pipeline from
// provider configuration.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrUnsupportedProvider = errors.New("unsupported llm provider")

const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"

	DefaultModel       = "mixtral-8x7b-32768"
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
)

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
}

// New returns a model for cfg.Provider. The temperature is not baked into the
// model; callers pass it per call with llms.WithTemperature.
func New(ctx context.Context, cfg Config) (llms.Model, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderGroq
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	var (
		m   llms.Model
		err error
	)
	switch provider {
	case ProviderGroq:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultGroqBaseURL
		}
		m = NewCompletionsLLM(model, cfg.APIKey, baseURL)
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err = openai.New(opts...)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		m, err = ollama.New(opts...)
	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithModel(model)}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		m, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("could not create %s client: %w", provider, err)
	}

	slog.InfoContext(ctx, "llm configured", "provider", provider, "model", model)
	return m, nil
}
