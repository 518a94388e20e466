package openai

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

func TestCompleteSendsTurnsInOrder(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"He worked at Verimatrix."}}]}`))
	}))
	defer srv.Close()

	m, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-3.5-turbo", Temperature: 0.7})
	require.NoError(t, err)

	reply, err := m.Complete(context.Background(), []domain.Turn{
		{Role: domain.RoleSystem, Content: "instructions"},
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
		{Role: domain.RoleUser, Content: "new question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "He worked at Verimatrix.", reply)

	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "new question", got.Messages[3].Content)
}

func TestCompleteQuotaIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	m, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	_, err = m.Complete(context.Background(), []domain.Turn{{Role: domain.RoleUser, Content: "hi"}})

	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.OpLLM, ue.Op)
	assert.False(t, ue.Transient)
}
