// Package chunker splits CV documents into retrieval chunks.
package chunker

import (
	"cvrag/internal/config"
	"cvrag/internal/domain"
)

// New returns the chunker named by cfg.Type; anything but "sentence" is recursive.
func New(cfg config.ChunkerConfig) domain.Chunker {
	if cfg.Type == "sentence" {
		return NewSentenceChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
}
