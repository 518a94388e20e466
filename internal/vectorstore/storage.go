// Package vectorstore selects the vector store backing retrieval.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"cvrag/internal/config"
	"cvrag/internal/domain"
	"cvrag/internal/vectorstore/memory"
	"cvrag/internal/vectorstore/pgvector"
	"cvrag/internal/vectorstore/qdrant"
)

// Selection is the store chosen at startup. Detection runs once; health
// checks only re-ping the chosen store.
type Selection struct {
	Store      domain.VectorStore
	Configured string
	Fallback   bool
	Reason     string
}

// Backend names the store actually serving queries.
func (s *Selection) Backend() string { return s.Store.Name() }

// NeedsIngest reports whether the store starts empty and must be filled
// from the configured content before serving.
func (s *Selection) NeedsIngest() bool { return s.Store.Name() == "memory" }

// Status is a point-in-time view of the selected store.
type Status struct {
	OK       bool
	Backend  string
	Fallback bool
	Reason   string
	Chunks   int
}

// Status pings the store and counts its chunks. An empty index is not OK.
func (s *Selection) Status(ctx context.Context) Status {
	st := Status{Backend: s.Backend(), Fallback: s.Fallback, Reason: s.Reason}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		if st.Reason == "" {
			st.Reason = err.Error()
		}
		return st
	}
	n, err := s.Store.Count(ctx)
	if err != nil {
		if st.Reason == "" {
			st.Reason = err.Error()
		}
		return st
	}
	st.Chunks = n
	st.OK = n > 0
	return st
}

// OpenBackend builds the configured store without any fallback.
func OpenBackend(ctx context.Context, cfg config.VectorStoreConfig, readOnly bool) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "pgvector":
		dsn, err := cfg.Pgvector.DSN()
		if err != nil {
			return nil, err
		}
		st, err := pgvector.Open(ctx, dsn, pgvector.Options{
			Table:          cfg.Pgvector.Table,
			ReadOnly:       readOnly,
			ConnectTimeout: time.Duration(cfg.Pgvector.ConnectTimeoutSecs) * time.Second,
		})
		if err != nil {
			if st != nil {
				_ = st.Close()
			}
			return nil, err
		}
		return st, nil
	case "qdrant":
		st := qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Distance:   cfg.Qdrant.Distance,
			ReadOnly:   readOnly,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := st.Ping(pctx); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, &domain.ConfigurationError{Setting: "vector_store.type", Reason: fmt.Sprintf("unknown store %q", cfg.Type)}
	}
}

// Open selects the query-time store. A persistent backend that cannot be
// reached, lacks its table or holds no chunks is replaced by an empty
// in-memory store; the reason is logged and kept on the Selection.
func Open(ctx context.Context, cfg config.VectorStoreConfig) (*Selection, error) {
	sel := &Selection{Configured: cfg.Type}
	if cfg.Type == "memory" || cfg.Type == "" {
		sel.Store = memory.NewStorage()
		return sel, nil
	}
	st, err := OpenBackend(ctx, cfg, true)
	if err != nil {
		var ce *domain.ConfigurationError
		if errors.As(err, &ce) {
			return nil, err
		}
		return sel.fallback(cfg.Type, err.Error()), nil
	}
	n, err := st.Count(ctx)
	switch {
	case err != nil:
		_ = st.Close()
		return sel.fallback(cfg.Type, err.Error()), nil
	case n == 0:
		_ = st.Close()
		return sel.fallback(cfg.Type, "index is empty"), nil
	}
	log.Info().Str("backend", st.Name()).Int("chunks", n).Msg("using persistent vector index")
	sel.Store = st
	return sel, nil
}

func (s *Selection) fallback(backend, reason string) *Selection {
	log.Warn().Str("backend", backend).Str("reason", reason).Msg("vector index unavailable, falling back to in-memory store")
	s.Store = memory.NewStorage()
	s.Fallback = true
	s.Reason = reason
	return s
}
