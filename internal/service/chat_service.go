// Package service implements the chat orchestrator and CV ingestion.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/phuslu/log"

	"cvrag/internal/domain"
	"cvrag/internal/logging"
	"cvrag/internal/retry"
)

// SessionStore is the conversation memory used by ChatService.
type SessionStore interface {
	Resolve(id string) (string, []domain.Turn)
	Append(id string, turns ...domain.Turn)
	Reset(id string) bool
	ListActive() []string
	Len() int
}

// Options tunes ChatService. Zero values fall back to defaults.
type Options struct {
	Owner            string
	TopK             int
	MaxMessageLength int
	Embed            retry.Policy
	Search           retry.Policy
	LLM              retry.Policy
}

// ChatService answers questions about the CV using retrieval over the
// vector store and a chat model.
type ChatService struct {
	embedder domain.Embedder
	store    domain.VectorStore
	model    domain.ChatModel
	sessions SessionStore
	lexical  *LexicalIndex
	opts     Options
}

func NewChatService(embedder domain.Embedder, store domain.VectorStore, model domain.ChatModel, sessions SessionStore, lexical *LexicalIndex, opts Options) *ChatService {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if lexical == nil {
		lexical = NewLexicalIndex()
	}
	return &ChatService{embedder: embedder, store: store, model: model, sessions: sessions, lexical: lexical, opts: opts}
}

// Sessions exposes the store for the session endpoints.
func (s *ChatService) Sessions() SessionStore { return s.sessions }

// Handle runs one chat exchange. Turns are appended only when the model
// answered; any earlier failure leaves the session untouched.
func (s *ChatService) Handle(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	message, err := ValidateRequest(req, s.opts.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	id, history := s.sessions.Resolve(req.SessionID)

	results, err := s.Retrieve(ctx, message, s.opts.TopK)
	if err != nil {
		s.logFailure(id, message, err)
		return nil, err
	}

	prompt := BuildPrompt(s.opts.Owner, results, history, message)
	var answer string
	err = s.opts.LLM.Do(ctx, domain.OpLLM, func(ctx context.Context) error {
		out, err := s.model.Complete(ctx, prompt)
		answer = out
		return err
	})
	if err != nil {
		s.logFailure(id, message, err)
		return nil, err
	}

	s.sessions.Append(id,
		domain.Turn{Role: domain.RoleUser, Content: message},
		domain.Turn{Role: domain.RoleAssistant, Content: answer},
	)
	sources := Sources(results)
	log.Info().
		Str("session", id).
		Int("question_len", len([]rune(message))).
		Int("response_len", len([]rune(answer))).
		Strs("sources", sources).
		Dur("took", time.Since(start)).
		Msg("chat interaction")
	return &domain.ChatResponse{
		Response:       answer,
		SessionID:      id,
		Sources:        sources,
		ConversationID: id,
	}, nil
}

// Retrieve returns the topK chunks most relevant to query. The lexical
// index answers when the query embedding carries no signal
// or the vector store returns nothing useful.
func (s *ChatService) Retrieve(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = s.opts.TopK
	}
	var vec []float64
	err := s.opts.Embed.Do(ctx, domain.OpEmbed, func(ctx context.Context) error {
		v, err := s.embedder.Embed(ctx, query)
		vec = v
		return err
	})
	if err != nil {
		return nil, err
	}
	if isZero(vec) {
		return s.lexicalOr(query, topK, nil), nil
	}
	var results []domain.SearchResult
	err = s.opts.Search.Do(ctx, domain.OpVectorSearch, func(ctx context.Context) error {
		r, err := s.store.Search(ctx, vec, topK)
		results = r
		return err
	})
	if err != nil {
		return nil, err
	}
	if allZero(results) {
		return s.lexicalOr(query, topK, results), nil
	}
	return results, nil
}

func (s *ChatService) lexicalOr(query string, topK int, results []domain.SearchResult) []domain.SearchResult {
	if s.lexical.Len() == 0 {
		return results
	}
	log.Debug().Str("query", logging.Truncate(query, 80)).Msg("lexical fallback")
	return s.lexical.Search(query, topK)
}

func (s *ChatService) logFailure(id, message string, err error) {
	op := ""
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		op = ue.Op
	}
	log.Error().
		Str("session", id).
		Str("op", op).
		Str("message", logging.Truncate(message, 80)).
		Err(err).
		Msg("chat failed")
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func allZero(results []domain.SearchResult) bool {
	for _, r := range results {
		if r.Score > 1e-9 {
			return false
		}
	}
	return true
}
