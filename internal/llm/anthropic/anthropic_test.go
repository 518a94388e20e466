package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/domain"
)

func TestConvertTurnsSeparatesSystem(t *testing.T) {
	messages, system := convertTurns([]domain.Turn{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, "be brief", system)
	assert.Len(t, messages, 2)
}

func TestComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","stop_reason":"end_turn","content":[{"type":"text","text":"Ten years."}],"usage":{"input_tokens":5,"output_tokens":2}}`))
	}))
	defer srv.Close()

	m, err := New(Config{APIKey: "sk-ant", BaseURL: srv.URL, Model: "claude-3-5-haiku-latest", MaxTokens: 256})
	require.NoError(t, err)
	reply, err := m.Complete(context.Background(), []domain.Turn{
		{Role: domain.RoleSystem, Content: "cv context"},
		{Role: domain.RoleUser, Content: "How long?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ten years.", reply)
	assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
	assert.EqualValues(t, 256, body["max_tokens"])
	assert.NotNil(t, body["system"])
}

func TestCompleteServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	m, err := New(Config{APIKey: "sk-ant", BaseURL: srv.URL, Model: "claude-3-5-haiku-latest"})
	require.NoError(t, err)
	_, err = m.Complete(context.Background(), []domain.Turn{{Role: domain.RoleUser, Content: "hi"}})
	assert.True(t, domain.IsTransient(err))
}
