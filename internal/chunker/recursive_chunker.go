package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"cvrag/internal/domain"
)

// DefaultSeparators are tried in order, from paragraph breaks down to single characters.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

// RecursiveChunker splits each section with a recursive character splitter.
// Sections are split independently so a chunk never spans two sections.
type RecursiveChunker struct {
	chunkSize int
	splitter  textsplitter.RecursiveCharacter
}

func NewRecursiveChunker(chunkSize, chunkOverlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &RecursiveChunker{
		chunkSize: chunkSize,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(DefaultSeparators),
			textsplitter.WithKeepSeparator(true),
		),
	}
}

func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, section := range document.Sections {
		body := normalizeWhitespace(section.Content)
		if body == "" {
			continue
		}
		pieces, err := c.splitter.SplitText(body)
		if err != nil {
			return nil, fmt.Errorf("split section %q: %w", section.Title, err)
		}
		for _, p := range pieces {
			for _, text := range capRunes(strings.TrimSpace(p), c.chunkSize) {
				chunks = appendChunk(chunks, document, section.Title, text)
			}
		}
	}
	return chunks, nil
}
