package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"cvrag/internal/domain"
	"cvrag/internal/retry"
)

// ChatModel calls the Anthropic messages API.
type ChatModel struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

func New(cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Setting: "ANTHROPIC_API_KEY", Reason: "required by the anthropic provider"}
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ChatModel{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (m *ChatModel) Name() string { return "anthropic/" + m.model }

func (m *ChatModel) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	messages, system := convertTurns(turns)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: int64(m.maxTokens),
		Messages:  messages,
	}
	if m.temperature > 0 {
		params.Temperature = anthropic.Float(m.temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", retry.Classify(domain.OpLLM, status, fmt.Errorf("anthropic messages: %w", err))
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", &domain.UpstreamError{Op: domain.OpLLM, Err: errors.New("no response generated from Claude API")}
	}
	return out.String(), nil
}

// convertTurns splits out system turns; the messages API takes them separately.
func convertTurns(turns []domain.Turn) ([]anthropic.MessageParam, string) {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	var system []string
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			system = append(system, t.Content)
		case domain.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return messages, strings.Join(system, "\n\n")
}
