package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"cvrag/internal/domain"
	"cvrag/internal/retry"
)

// Embedder produces embeddings with the Gemini API.
type Embedder struct {
	client *genai.Client
	model  string

	mu        sync.RWMutex
	dimension int
}

func New(ctx context.Context, apiKey, model string) (*Embedder, error) {
	if apiKey == "" {
		return nil, &domain.ConfigurationError{Setting: "embedder.gemini.api_key_env", Reason: "api key is empty"}
	}
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Name() string { return "gemini" }

func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	result, err := e.client.Models.EmbedContent(ctx, e.model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, &genai.EmbedContentConfig{})
	if err != nil {
		return nil, retry.Classify(domain.OpEmbed, retry.StatusFromText(err), fmt.Errorf("gemini embedding: %w", err))
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, &domain.UpstreamError{Op: domain.OpEmbed, Err: errors.New("no embedding returned from API")}
	}
	values := result.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out)
	}
	e.mu.Unlock()
	return out, nil
}
