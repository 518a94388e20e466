package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cvrag/internal/chunker"
	"cvrag/internal/content"
	"cvrag/internal/embedding"
	"cvrag/internal/service"
	"cvrag/internal/vectorstore"
	"cvrag/internal/vectorstore/pgvector"
)

func ingestCMD(cfgPath *string) *cobra.Command {
	var (
		source  string
		migrate bool
	)
	ingest := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and store the CV in the configured vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if source != "" {
				cfg.Content.Source = source
			}
			if migrate && cfg.VectorStore.Type == "pgvector" {
				dsn, err := cfg.VectorStore.Pgvector.DSN()
				if err != nil {
					return err
				}
				if err := pgvector.Migrate(dsn, "up", 0); err != nil {
					return err
				}
			}
			emb, err := embedding.New(ctx, cfg.Embedder)
			if err != nil {
				return err
			}
			doc, err := content.Load(cfg.Content.Source, cfg.Content.Owner)
			if err != nil {
				return err
			}
			store, err := vectorstore.OpenBackend(ctx, cfg.VectorStore, false)
			if err != nil {
				return fmt.Errorf("open %s: %w", cfg.VectorStore.Type, err)
			}
			defer store.Close()

			embedPolicy, _, _ := policies(cfg)
			res, err := service.NewIngestor(chunker.New(cfg.Chunker), emb, store, newSummarizer(cfg.Summarizer), service.IngestOptions{
				Policy:       embedPolicy,
				MaxSentences: cfg.Summarizer.MaxSentences,
			}).Ingest(ctx, doc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested %d chunks of %q into %s (dimension %d) in %s\n",
				res.Chunks, doc.Owner, store.Name(), res.Dimension, res.Took.Round(time.Millisecond))
			if res.Summary != "" {
				fmt.Fprintf(out, "Summary: %s\n", res.Summary)
			}
			return nil
		},
	}
	ingest.Flags().StringVar(&source, "source", "", "CV file (.yaml, .md, .txt, .html, .pdf); overrides content.source")
	ingest.Flags().BoolVar(&migrate, "migrate", false, "apply pgvector migrations first")
	return ingest
}
