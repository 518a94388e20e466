package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/chunker"
	"cvrag/internal/content"
	"cvrag/internal/domain"
	"cvrag/internal/embedding/tfidf"
	"cvrag/internal/vectorstore/memory"
)

type failingEmbedder struct{ *tfidf.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("boom")
}

func TestIngestFillsStoreAndSummary(t *testing.T) {
	doc, err := content.Default()
	require.NoError(t, err)
	store := memory.NewStorage()
	lex := NewLexicalIndex()
	ing := NewIngestor(chunker.NewRecursiveChunker(500, 50), tfidf.NewEmbedder(), store, nil, IngestOptions{Lexical: lex})

	res, err := ing.Ingest(context.Background(), doc)
	require.NoError(t, err)
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, n)
	assert.Equal(t, res.Chunks, lex.Len())
	assert.Positive(t, res.Dimension)
	assert.Empty(t, res.Summary)

	// re-ingestion replaces instead of appending
	_, err = ing.Ingest(context.Background(), doc)
	require.NoError(t, err)
	n2, _ := store.Count(context.Background())
	assert.Equal(t, n, n2)
}

func TestIngestEmbedFailureKeepsStore(t *testing.T) {
	doc := domain.Document{ID: "d", Sections: []domain.Section{{Title: "A", Content: "alpha beta gamma"}}}
	store := memory.NewStorage()
	require.NoError(t, store.Init(context.Background(), 1))
	require.NoError(t, store.Upsert(context.Background(), []domain.Chunk{{Embedding: []float64{1}}}))

	lex := NewLexicalIndex()
	ing := NewIngestor(chunker.NewRecursiveChunker(500, 50), failingEmbedder{tfidf.NewEmbedder()}, store, nil, IngestOptions{Lexical: lex})
	_, err := ing.Ingest(context.Background(), doc)
	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.OpEmbed, ue.Op)

	n, _ := store.Count(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, lex.Len(), "lexical index is filled before embedding")
}
