package domain

import (
	"context"
	"strings"
	"time"
)

// Section is a titled part of a CV such as "Technical Skills".
type Section struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

// Document represents a loaded CV source split into sections.
type Document struct {
	ID       string
	Path     string
	Owner    string
	Sections []Section
}

// FullText joins every section body, separated by blank lines.
func (d Document) FullText() string {
	parts := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		parts = append(parts, strings.TrimSpace(s.Content))
	}
	return strings.Join(parts, "\n\n")
}

// Chunk is a bounded span of section text used for retrieval indexing.
// Index is the global insertion order and breaks score ties.
type Chunk struct {
	ID         string
	DocumentID string
	Section    string
	Text       string
	Index      int
	Embedding  []float64
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body accepted by POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is returned by a successful chat exchange.
type ChatResponse struct {
	Response       string   `json:"response"`
	SessionID      string   `json:"session_id"`
	Sources        []string `json:"sources"`
	ConversationID string   `json:"conversation_id"`
}

// SessionInfo describes an active conversation.
type SessionInfo struct {
	ID           string
	Turns        int
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore persists chunk embeddings and supports similarity search.
type VectorStore interface {
	Name() string
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// ChatModel produces an assistant reply for an ordered list of turns.
// A leading system turn carries the instructions.
type ChatModel interface {
	Name() string
	Complete(ctx context.Context, turns []Turn) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
