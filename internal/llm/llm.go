// Package llm builds the configured domain.ChatModel.
package llm

import (
	"context"
	"fmt"

	"cvrag/internal/config"
	"cvrag/internal/domain"
	"cvrag/internal/llm/anthropic"
	"cvrag/internal/llm/gemini"
	"cvrag/internal/llm/openai"
)

// New returns the chat model for cfg.Provider. A missing API key is a
// *domain.ConfigurationError so the server refuses to start.
func New(ctx context.Context, cfg config.LLMConfig) (domain.ChatModel, error) {
	key := cfg.ResolveAPIKey()
	if key == "" {
		return nil, &domain.ConfigurationError{Setting: cfg.APIKeyEnv, Reason: fmt.Sprintf("api key required by the %s provider", cfg.Provider)}
	}
	switch cfg.Provider {
	case "openai", "":
		m, err := openai.New(openai.Config{
			APIKey:      key,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case "anthropic":
		m, err := anthropic.New(anthropic.Config{
			APIKey:      key,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case "gemini":
		m, err := gemini.New(ctx, key, cfg.Model, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, &domain.ConfigurationError{Setting: "llm.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}
