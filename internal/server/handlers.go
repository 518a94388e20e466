package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cvrag/internal/domain"
)

const privacyNotice = "This service processes messages with a third-party language model API and accesses READ-ONLY CV data but does not store user chat history."

type healthResponse struct {
	Status             string    `json:"status"`
	VectorIndexOK      bool      `json:"vector_index_ok"`
	VectorBackend      string    `json:"vector_backend"`
	Fallback           bool      `json:"fallback"`
	FallbackReason     string    `json:"fallback_reason,omitempty"`
	LLMConfigured      bool      `json:"llm_configured"`
	LLMProvider        string    `json:"llm_provider"`
	EmbedderConfigured bool      `json:"embedder_configured"`
	Embedder           string    `json:"embedder"`
	ActiveSessions     int       `json:"active_sessions"`
	Version            string    `json:"version"`
	Timestamp          time.Time `json:"timestamp"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

type resetResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id"`
	Existed   bool   `json:"existed"`
	Message   string `json:"message"`
}

func (s *Server) handleChat(c echo.Context) error {
	start := time.Now()
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		s.metrics.chatRequests.WithLabelValues("invalid").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	resp, err := s.chat.Handle(c.Request().Context(), req)
	s.metrics.chatDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			s.metrics.chatRequests.WithLabelValues("invalid").Inc()
		} else {
			s.metrics.chatRequests.WithLabelValues("error").Inc()
		}
		return err
	}
	s.metrics.chatRequests.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSampleQuestions(c echo.Context) error {
	qs := s.opts.SampleQuestions
	if qs == nil {
		qs = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"sample_questions": qs})
}

// handleHealth is unhealthy (503) when the model is not configured or a
// persistent index is unreachable, and degraded while serving from the
// in-memory fallback or an empty in-memory index.
func (s *Server) handleHealth(c echo.Context) error {
	st := s.index.Status(c.Request().Context())
	h := healthResponse{
		VectorIndexOK:      st.OK,
		VectorBackend:      st.Backend,
		Fallback:           st.Fallback,
		FallbackReason:     st.Reason,
		LLMConfigured:      s.opts.LLMConfigured,
		LLMProvider:        s.opts.LLMProvider,
		EmbedderConfigured: s.opts.EmbedderConfigured,
		Embedder:           s.opts.Embedder,
		ActiveSessions:     s.sessions.Len(),
		Version:            s.opts.App.Version,
		Timestamp:          time.Now().UTC(),
	}
	code := http.StatusOK
	switch {
	case !s.opts.LLMConfigured || !s.opts.EmbedderConfigured:
		h.Status = "unhealthy"
	case st.Fallback || (st.Backend == "memory" && !st.OK):
		h.Status = "degraded"
	case !st.OK:
		h.Status = "unhealthy"
	default:
		h.Status = "healthy"
	}
	if h.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, h)
}

func (s *Server) handleActiveSessions(c echo.Context) error {
	ids := s.sessions.ListActive()
	return c.JSON(http.StatusOK, map[string]any{"active_sessions": ids, "count": len(ids)})
}

// handleResetSession accepts the id as a query parameter or in the JSON body.
func (s *Server) handleResetSession(c echo.Context) error {
	id := c.QueryParam("session_id")
	if id == "" {
		var body resetRequest
		if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
		}
		id = body.SessionID
	}
	if id == "" {
		return &domain.ValidationError{Field: "session_id", Reason: "session_id is required"}
	}
	existed := s.sessions.Reset(id)
	msg := fmt.Sprintf("Session %s reset successfully", id)
	if !existed {
		msg = fmt.Sprintf("Session %s not found", id)
	}
	return c.JSON(http.StatusOK, resetResponse{OK: true, SessionID: id, Existed: existed, Message: msg})
}

func (s *Server) handleRoot(c echo.Context) error {
	name := s.opts.App.Name
	if name == "" {
		name = "CV Chatbot API"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": name,
		"version": s.opts.App.Version,
		"docs":    "/sample-questions",
		"privacy": privacyNotice,
		"owner":   s.opts.Owner,
		"summary": s.opts.Summary,
	})
}
