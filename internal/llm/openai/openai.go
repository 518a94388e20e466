package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"cvrag/internal/domain"
	"cvrag/internal/retry"
)

// ChatModel calls the OpenAI chat completions API.
type ChatModel struct {
	client      openai.Client
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
		return nil, &domain.ConfigurationError{Setting: "OPENAI_API_KEY", Reason: "required by the openai provider"}
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ChatModel{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (m *ChatModel) Name() string { return "openai/" + m.model }

func (m *ChatModel) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(m.model),
		Messages:    messages,
		Temperature: openai.Float(m.temperature),
	}
	if m.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(m.maxTokens))
	}
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", retry.Classify(domain.OpLLM, status, fmt.Errorf("openai chat completion: %w", err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &domain.UpstreamError{Op: domain.OpLLM, Err: errors.New("openai returned an empty completion")}
	}
	return resp.Choices[0].Message.Content, nil
}
