package main

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"cvrag/internal/chunker"
	"cvrag/internal/config"
	"cvrag/internal/content"
	"cvrag/internal/domain"
	"cvrag/internal/embedding"
	"cvrag/internal/llm"
	"cvrag/internal/logging"
	"cvrag/internal/retry"
	"cvrag/internal/service"
	"cvrag/internal/session"
	"cvrag/internal/summarizer"
	"cvrag/internal/vectorstore"
)

// loadConfig reads, validates and applies the logging section.
func loadConfig(path string) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging)
	if path != "" {
		log.Debug().Str("path", path).Msg("config loaded")
	}
	return cfg, nil
}

func policies(cfg *config.AppConfig) (embed, search, chat retry.Policy) {
	interval := time.Duration(cfg.Retry.InitialIntervalMs) * time.Millisecond
	embed = retry.Policy{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: interval,
		AttemptTimeout:  time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
	}
	search = retry.Policy{MaxRetries: cfg.Retry.MaxRetries, InitialInterval: interval, AttemptTimeout: 10 * time.Second}
	chat = retry.Policy{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: interval,
		AttemptTimeout:  time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	}
	return embed, search, chat
}

func newSummarizer(cfg config.SummarizerConfig) domain.Summarizer {
	switch cfg.Type {
	case "", "frequency":
		return summarizer.NewFrequencySummarizer()
	default:
		return nil
	}
}

// app holds everything the serve, chat and mcp commands share.
type app struct {
	cfg       *config.AppConfig
	doc       domain.Document
	selection *vectorstore.Selection
	embedder  domain.Embedder
	model     domain.ChatModel
	sessions  *session.Store
	chat      *service.ChatService
	summary   string
}

// buildApp wires the query path. When the selected store is in memory the
// CV is ingested into it; an ingestion failure is logged and serving goes on
// with the lexical index only.
func buildApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	emb, err := embedding.New(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	model, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	doc, err := content.Load(cfg.Content.Source, cfg.Content.Owner)
	if err != nil {
		return nil, err
	}
	sel, err := vectorstore.Open(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	embedPolicy, searchPolicy, chatPolicy := policies(cfg)
	sum := newSummarizer(cfg.Summarizer)
	lex := service.NewLexicalIndex()
	ch := chunker.New(cfg.Chunker)

	a := &app{cfg: cfg, doc: doc, selection: sel, embedder: emb, model: model}
	if sel.NeedsIngest() {
		res, err := service.NewIngestor(ch, emb, sel.Store, sum, service.IngestOptions{
			Lexical:      lex,
			Policy:       embedPolicy,
			MaxSentences: cfg.Summarizer.MaxSentences,
		}).Ingest(ctx, doc)
		if err != nil {
			log.Error().Err(err).Msg("startup ingestion failed; answering from lexical matches")
		} else {
			a.summary = res.Summary
		}
	} else {
		chunks, err := ch.Chunk(doc)
		if err != nil {
			return nil, err
		}
		lex.Set(chunks)
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		if err := emb.Prepare(texts); err != nil {
			return nil, fmt.Errorf("prepare embedder: %w", err)
		}
		if sum != nil {
			a.summary, _ = sum.Summarize(doc.FullText(), cfg.Summarizer.MaxSentences)
		}
	}

	a.sessions = session.NewStore(cfg.Conversation.MaxMemory)
	a.chat = service.NewChatService(emb, sel.Store, model, a.sessions, lex, service.Options{
		Owner:            doc.Owner,
		TopK:             cfg.Retrieval.TopK,
		MaxMessageLength: cfg.Conversation.MaxMessageLength,
		Embed:            embedPolicy,
		Search:           searchPolicy,
		LLM:              chatPolicy,
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.selection.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("close vector store")
	}
}
