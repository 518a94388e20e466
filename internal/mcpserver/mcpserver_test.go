package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/domain"
)

type fakeBackend struct {
	got domain.ChatRequest
	err error
}

func (f *fakeBackend) Handle(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatResponse{Response: "Anti-tamper tooling.", SessionID: "s-1", Sources: []string{"Recent Experience - Verimatrix"}}, nil
}

func (f *fakeBackend) Retrieve(_ context.Context, query string, topK int) ([]domain.SearchResult, error) {
	out := []domain.SearchResult{
		{Chunk: domain.Chunk{Section: "Skills", Text: "Go, C++"}, Score: 0.8},
		{Chunk: domain.Chunk{Text: "untitled"}, Score: 0.2},
	}
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestAskCV(t *testing.T) {
	b := &fakeBackend{}
	res, err := handleAsk(b)(context.Background(), call("ask_cv", map[string]any{"question": "Security work?", "session_id": "s-1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	out := text(t, res)
	assert.Contains(t, out, "Anti-tamper tooling.")
	assert.Contains(t, out, "Sources: Recent Experience - Verimatrix")
	assert.Equal(t, "s-1", b.got.SessionID)

	res, err = handleAsk(b)(context.Background(), call("ask_cv", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	b.err = &domain.UpstreamError{Op: domain.OpLLM, Err: errors.New("quota exceeded for key sk-1")}
	res, err = handleAsk(b)(context.Background(), call("ask_cv", map[string]any{"question": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.NotContains(t, text(t, res), "sk-1")
}

func TestSearchCV(t *testing.T) {
	res, err := handleSearch(&fakeBackend{})(context.Background(), call("search_cv", map[string]any{"query": "go", "limit": 1}))
	require.NoError(t, err)
	out := text(t, res)
	assert.Contains(t, out, "1. Skills")
	assert.NotContains(t, out, "untitled")
}

func TestSampleQuestionsTool(t *testing.T) {
	res, err := handleSampleQuestions([]string{"a?", "b?"})(context.Background(), call("sample_questions", nil))
	require.NoError(t, err)
	assert.Equal(t, "1. a?\n2. b?\n", text(t, res))
}

func TestNewRegistersTools(t *testing.T) {
	s := New("cvrag", "test", &fakeBackend{}, nil)
	assert.NotNil(t, s)
}
