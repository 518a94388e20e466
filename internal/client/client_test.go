package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/domain"
)

func TestChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		var req domain.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Message)
		assert.Equal(t, "s1", req.SessionID)
		_ = json.NewEncoder(w).Encode(domain.ChatResponse{Response: "hi", SessionID: "s1", Sources: []string{"Skills"}, ConversationID: "s1"})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	resp, err := c.Chat(context.Background(), "hello", "s1")
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Response)
	assert.Equal(t, []string{"Skills"}, resp.Sources)
}

func TestAPIErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Message cannot be empty"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, 0).Chat(context.Background(), "", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Message cannot be empty", apiErr.Detail)
}

func TestSampleQuestionsAndReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sample-questions":
			_, _ = w.Write([]byte(`{"sample_questions":["a","b"]}`))
		case "/reset-session":
			assert.Equal(t, "x y", r.URL.Query().Get("session_id"))
			_, _ = w.Write([]byte(`{"ok":true,"existed":true}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	qs, err := c.SampleQuestions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, qs)

	existed, err := c.ResetSession(context.Background(), "x y")
	require.NoError(t, err)
	assert.True(t, existed)
}
