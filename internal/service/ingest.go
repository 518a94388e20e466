package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"cvrag/internal/domain"
	"cvrag/internal/retry"
)

// Ingestor chunks a CV, embeds the chunks and writes them to a store.
type Ingestor struct {
	chunker      domain.Chunker
	embedder     domain.Embedder
	store        domain.VectorStore
	summarizer   domain.Summarizer
	lexical      *LexicalIndex
	policy       retry.Policy
	maxSentences int
	concurrency  int
}

// IngestOptions tunes an Ingestor.
type IngestOptions struct {
	Lexical      *LexicalIndex
	Policy       retry.Policy
	MaxSentences int
	Concurrency  int
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	DocumentID string
	Chunks     int
	Dimension  int
	Summary    string
	Took       time.Duration
}

func NewIngestor(chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, summarizer domain.Summarizer, opts IngestOptions) *Ingestor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxSentences <= 0 {
		opts.MaxSentences = 3
	}
	return &Ingestor{
		chunker:      chunker,
		embedder:     embedder,
		store:        store,
		summarizer:   summarizer,
		lexical:      opts.Lexical,
		policy:       opts.Policy,
		maxSentences: opts.MaxSentences,
		concurrency:  opts.Concurrency,
	}
}

// Ingest replaces the store contents with the chunks of doc. The lexical
// index, if any, is filled before embedding starts.
func (i *Ingestor) Ingest(ctx context.Context, doc domain.Document) (*IngestResult, error) {
	start := time.Now()
	chunks, err := i.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", doc.ID, err)
	}
	if len(chunks) == 0 {
		return nil, errors.New("document produced no chunks")
	}
	if i.lexical != nil {
		i.lexical.Set(chunks)
	}

	texts := make([]string, len(chunks))
	for k, ch := range chunks {
		texts[k] = ch.Text
	}
	if err := i.embedder.Prepare(texts); err != nil {
		return nil, fmt.Errorf("prepare embedder: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for k := range chunks {
		k := k
		g.Go(func() error {
			return i.policy.Do(gctx, domain.OpEmbed, func(ctx context.Context) error {
				vec, err := i.embedder.Embed(ctx, chunks[k].Text)
				if err != nil {
					return err
				}
				chunks[k].Embedding = vec
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return nil, errors.New("embedder returned empty vectors")
	}

	if err := i.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear %s: %w", i.store.Name(), err)
	}
	if err := i.store.Init(ctx, dim); err != nil {
		return nil, fmt.Errorf("init %s: %w", i.store.Name(), err)
	}
	if err := i.store.Upsert(ctx, chunks); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", i.store.Name(), err)
	}

	res := &IngestResult{DocumentID: doc.ID, Chunks: len(chunks), Dimension: dim}
	if i.summarizer != nil {
		summary, err := i.summarizer.Summarize(doc.FullText(), i.maxSentences)
		if err != nil {
			log.Warn().Err(err).Msg("summarize cv")
		}
		res.Summary = summary
	}
	res.Took = time.Since(start)
	log.Info().
		Str("document", doc.ID).
		Str("store", i.store.Name()).
		Str("embedder", i.embedder.Name()).
		Int("chunks", res.Chunks).
		Int("dimension", dim).
		Dur("took", res.Took).
		Msg("ingested cv")
	return res, nil
}
