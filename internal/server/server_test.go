package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/chunker"
	"cvrag/internal/config"
	"cvrag/internal/content"
	"cvrag/internal/domain"
	"cvrag/internal/embedding/tfidf"
	"cvrag/internal/service"
	"cvrag/internal/session"
	"cvrag/internal/vectorstore"
)

type stubModel struct {
	err error
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) Complete(_ context.Context, turns []domain.Turn) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "answer to: " + turns[len(turns)-1].Content, nil
}

type fixedStatus vectorstore.Status

func (f fixedStatus) Status(context.Context) vectorstore.Status { return vectorstore.Status(f) }

type harness struct {
	srv      *Server
	sessions *session.Store
	model    *stubModel
	sel      *vectorstore.Selection
}

// newHarness wires the real service over an unreachable pgvector backend so
// the in-memory fallback is exercised.
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	sel, err := vectorstore.Open(ctx, config.VectorStoreConfig{Type: "pgvector", Pgvector: config.PgvectorConfig{
		Host: "127.0.0.1", Port: "1", User: "u", DBName: "d", SSLMode: "disable", ConnectTimeoutSecs: 1,
	}})
	require.NoError(t, err)
	require.True(t, sel.Fallback)

	doc, err := content.Default()
	require.NoError(t, err)
	emb := tfidf.NewEmbedder()
	lex := service.NewLexicalIndex()
	_, err = service.NewIngestor(chunker.NewRecursiveChunker(500, 50), emb, sel.Store, nil, service.IngestOptions{Lexical: lex}).Ingest(ctx, doc)
	require.NoError(t, err)

	sessions := session.NewStore(10)
	model := &stubModel{}
	chat := service.NewChatService(emb, sel.Store, model, sessions, lex, service.Options{Owner: doc.Owner})
	srv := New(chat, sessions, sel, Options{
		Server:             config.ServerConfig{AllowedOrigins: []string{"*"}, BodyLimit: "64K"},
		App:                config.AppInfoConfig{Name: "CV Chatbot API", Version: "2.0.0"},
		Owner:              doc.Owner,
		SampleQuestions:    []string{"What is Mathieu's experience in cybersecurity?"},
		LLMProvider:        "stub",
		LLMConfigured:      true,
		Embedder:           "tfidf",
		EmbedderConfigured: true,
	})
	return &harness{srv: srv, sessions: sessions, model: model, sel: sel}
}

func (h *harness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestChatWithFallbackStore(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/chat", `{"message":"What is Mathieu's experience in cybersecurity?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[domain.ChatResponse](t, rec)
	assert.NotEmpty(t, resp.Response)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.SessionID, resp.ConversationID)
	assert.Contains(t, resp.Sources, "Recent Experience - Verimatrix")

	rec = h.do(t, http.MethodPost, "/chat", `{"message":"And before that?","session_id":"`+resp.SessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resp.SessionID, decode[domain.ChatResponse](t, rec).SessionID)
	assert.Len(t, h.sessions.History(resp.SessionID), 4)
}

func TestChatEchoesProvidedSessionID(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/chat", `{"message":"Tell me about Verimatrix","session_id":"my-session"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "my-session", decode[domain.ChatResponse](t, rec).SessionID)
}

func TestChatValidation(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message cannot be empty", decode[map[string]string](t, rec)["detail"])
	assert.Zero(t, h.sessions.Len())

	rec = h.do(t, http.MethodPost, "/chat", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.model.err = &domain.UpstreamError{Op: domain.OpLLM, Err: errors.New("invalid api key sk-secret")}
	rec := h.do(t, http.MethodPost, "/chat", `{"message":"Tell me about Alstom","session_id":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decode[map[string]string](t, rec)["detail"]
	assert.Equal(t, apology, detail)
	assert.NotContains(t, rec.Body.String(), "sk-secret")
	assert.Zero(t, h.sessions.Len())

	metrics := h.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, metrics.Body.String(), `cvrag_upstream_errors_total{op="llm"} 1`)
	assert.Contains(t, metrics.Body.String(), `cvrag_chat_requests_total{outcome="error"} 1`)
}

func TestHealthDegradedOnFallback(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	hr := decode[healthResponse](t, rec)
	assert.Equal(t, "degraded", hr.Status)
	assert.True(t, hr.Fallback)
	assert.True(t, hr.VectorIndexOK)
	assert.Equal(t, "memory", hr.VectorBackend)
	assert.NotEmpty(t, hr.FallbackReason)
	assert.Equal(t, "2.0.0", hr.Version)
}

func TestHealthStates(t *testing.T) {
	h := newHarness(t)
	h.srv.index = fixedStatus{OK: true, Backend: "pgvector", Chunks: 12}
	assert.Equal(t, "healthy", decode[healthResponse](t, h.do(t, http.MethodGet, "/health", "")).Status)

	h.srv.index = fixedStatus{OK: false, Backend: "pgvector", Reason: "connection refused"}
	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode[healthResponse](t, rec).Status)

	h.srv.index = fixedStatus{OK: true, Backend: "pgvector"}
	h.srv.opts.LLMConfigured = false
	assert.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodGet, "/health", "").Code)
}

func TestResetSessionIdempotent(t *testing.T) {
	h := newHarness(t)
	h.sessions.Append("abc", domain.Turn{Role: domain.RoleUser, Content: "hi"})

	rec := h.do(t, http.MethodPost, "/reset-session", `{"session_id":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[resetResponse](t, rec)
	assert.True(t, first.OK)
	assert.True(t, first.Existed)
	assert.Equal(t, "Session abc reset successfully", first.Message)

	rec = h.do(t, http.MethodPost, "/reset-session?session_id=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[resetResponse](t, rec)
	assert.True(t, second.OK)
	assert.False(t, second.Existed)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/reset-session", "").Code)
}

func TestActiveSessionsAndMetadata(t *testing.T) {
	h := newHarness(t)
	h.sessions.Append("one", domain.Turn{Role: domain.RoleUser, Content: "a"})
	h.sessions.Append("two", domain.Turn{Role: domain.RoleUser, Content: "b"})

	rec := h.do(t, http.MethodGet, "/active-sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active struct {
		ActiveSessions []string `json:"active_sessions"`
		Count          int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Equal(t, 2, active.Count)
	assert.ElementsMatch(t, []string{"one", "two"}, active.ActiveSessions)

	qs := decode[map[string][]string](t, h.do(t, http.MethodGet, "/sample-questions", ""))
	assert.Len(t, qs["sample_questions"], 1)

	root := decode[map[string]string](t, h.do(t, http.MethodGet, "/", ""))
	assert.Equal(t, "Mathieu Delehaye", root["owner"])
	assert.Contains(t, root["privacy"], "READ-ONLY")

	metrics := h.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, metrics.Body.String(), "cvrag_active_sessions 2")
}

func TestRateLimitOnChat(t *testing.T) {
	h := newHarness(t)
	h.srv = New(service.NewChatService(tfidf.NewEmbedder(), h.sel.Store, h.model, h.sessions, nil, service.Options{}),
		h.sessions, h.sel, Options{Server: config.ServerConfig{RateLimit: 0.001, RateBurst: 1}, LLMConfigured: true, EmbedderConfigured: true})
	first := h.do(t, http.MethodPost, "/chat", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, first.Code)
	second := h.do(t, http.MethodPost, "/chat", `{"message":""}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
