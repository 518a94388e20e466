// Package embedding builds the configured domain.Embedder.
package embedding

import (
	"context"
	"fmt"
	"os"

	"cvrag/internal/config"
	"cvrag/internal/domain"
	"cvrag/internal/embedding/gemini"
	"cvrag/internal/embedding/openai"
	"cvrag/internal/embedding/tfidf"
)

// New returns the embedder selected by cfg.Type. Missing API keys are
// reported as *domain.ConfigurationError.
func New(ctx context.Context, cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai", "":
		key := os.Getenv(cfg.OpenAI.APIKeyEnv)
		if key == "" {
			return nil, &domain.ConfigurationError{Setting: cfg.OpenAI.APIKeyEnv, Reason: "required by the openai embedder"}
		}
		return openai.NewClient(openai.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  key,
			Model:   cfg.OpenAI.Model,
		})
	case "gemini":
		key := os.Getenv(cfg.Gemini.APIKeyEnv)
		if key == "" {
			return nil, &domain.ConfigurationError{Setting: cfg.Gemini.APIKeyEnv, Reason: "required by the gemini embedder"}
		}
		return gemini.New(ctx, key, cfg.Gemini.Model)
	default:
		return nil, &domain.ConfigurationError{Setting: "embedder.type", Reason: fmt.Sprintf("unknown embedder %q", cfg.Type)}
	}
}
