package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"cvrag/internal/domain"
	"cvrag/internal/retry"
)

// ChatModel calls Gemini GenerateContent.
type ChatModel struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func New(ctx context.Context, apiKey, model string, temperature float64, maxTokens int) (*ChatModel, error) {
	if apiKey == "" {
		return nil, &domain.ConfigurationError{Setting: "GOOGLE_API_KEY", Reason: "required by the gemini provider"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &ChatModel{client: client, model: model, temperature: float32(temperature), maxTokens: int32(maxTokens)}, nil
}

func (m *ChatModel) Name() string { return "gemini/" + m.model }

func (m *ChatModel) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	var system []string
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			system = append(system, t.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.temperature),
	}
	if m.maxTokens > 0 {
		cfg.MaxOutputTokens = m.maxTokens
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, cfg)
	if err != nil {
		return "", retry.Classify(domain.OpLLM, retry.StatusFromText(err), fmt.Errorf("gemini generate: %w", err))
	}
	var out strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					out.WriteString(part.Text)
				}
			}
			if out.Len() > 0 {
				break
			}
		}
	}
	if out.Len() == 0 {
		return "", &domain.UpstreamError{Op: domain.OpLLM, Err: errors.New("no response generated from chat model")}
	}
	return out.String(), nil
}
