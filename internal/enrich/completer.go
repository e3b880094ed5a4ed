package enrich

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer turns a prompt into a completion
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMConfig selects the model backing an LLMCompleter
type LLMConfig struct {
	Provider    string // "openai" or "googleai"
	APIKey      string
	Model       string
	Temperature float64
}

// LLMCompleter adapts a langchaingo model to Completer
type LLMCompleter struct {
	model       llms.Model
	temperature float64
}

// NewLLMCompleter builds the model client for cfg.Provider.
func NewLLMCompleter(ctx context.Context, cfg LLMConfig) (*LLMCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is empty")
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "", "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		model, err = openai.New(opts...)
	case "googleai", "gemini":
		opts := []googleai.Option{googleai.WithAPIKey(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, googleai.WithDefaultModel(cfg.Model))
		}
		model, err = googleai.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	return &LLMCompleter{model: model, temperature: cfg.Temperature}, nil
}

// Complete sends prompt as a single human message
func (c *LLMCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(c.temperature))
}
