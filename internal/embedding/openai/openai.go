package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"cvrag/internal/domain"
	"cvrag/internal/retry"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
// Retries are left to the caller's retry.Policy.
type Client struct {
	client openai.Client
	model  string

	mu        sync.RWMutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Setting: "embedder.openai.api_key_env", Reason: "api key is empty"}
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Prepare is not required for remote embedding. The dimension is learned on first embed.
func (c *Client) Prepare(corpus []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors, or 0 before the first call.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &domain.UpstreamError{Op: domain.OpEmbed, Err: errors.New("no embedding returned")}
	}
	v := resp.Data[0].Embedding
	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(v)
	}
	c.mu.Unlock()
	return v, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retry.Classify(domain.OpEmbed, apiErr.StatusCode, fmt.Errorf("openai embeddings: %w", err))
	}
	return retry.Classify(domain.OpEmbed, 0, fmt.Errorf("openai embeddings: %w", err))
}
