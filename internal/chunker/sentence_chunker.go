package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"cvrag/internal/domain"
	"cvrag/internal/textutil"
)

// SentenceChunker packs whole sentences into chunks of at most chunkSize
// characters and repeats trailing sentences, up to chunkOverlap characters,
// at the start of the next chunk.
type SentenceChunker struct {
	chunkSize    int
	chunkOverlap int
}

func NewSentenceChunker(chunkSize, chunkOverlap int) *SentenceChunker {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &SentenceChunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, section := range document.Sections {
		var sentences []string
		for _, s := range textutil.Sentences(normalizeWhitespace(section.Content)) {
			sentences = append(sentences, capRunes(s, c.chunkSize)...)
		}
		var window []string
		size := 0
		for i := 0; i < len(sentences); i++ {
			s := sentences[i]
			n := utf8.RuneCountInString(s)
			if len(window) > 0 && size+1+n > c.chunkSize {
				chunks = appendChunk(chunks, document, section.Title, strings.Join(window, " "))
				window, size = c.carry(window)
				// the carried tail must leave room for s
				for len(window) > 0 && size+1+n > c.chunkSize {
					size -= utf8.RuneCountInString(window[0]) + 1
					window = window[1:]
				}
				if len(window) == 0 {
					size = 0
				}
			}
			if len(window) > 0 {
				size++
			}
			window = append(window, s)
			size += n
		}
		if len(window) > 0 {
			chunks = appendChunk(chunks, document, section.Title, strings.Join(window, " "))
		}
	}
	return chunks, nil
}

// carry returns the trailing sentences of window fitting in the overlap budget.
func (c *SentenceChunker) carry(window []string) ([]string, int) {
	size := 0
	start := len(window)
	for start > 0 {
		n := utf8.RuneCountInString(window[start-1])
		if size > 0 {
			n++
		}
		if size+n > c.chunkOverlap {
			break
		}
		size += n
		start--
	}
	out := make([]string, len(window)-start)
	copy(out, window[start:])
	return out, size
}

func appendChunk(chunks []domain.Chunk, document domain.Document, section, text string) []domain.Chunk {
	if text == "" {
		return chunks
	}
	idx := len(chunks)
	return append(chunks, domain.Chunk{
		ID:         document.ID + ":" + strconv.Itoa(idx),
		DocumentID: document.ID,
		Section:    section,
		Text:       text,
		Index:      idx,
	})
}

// normalizeWhitespace trims each line and drops blank-line runs beyond one.
func normalizeWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// capRunes hard-splits s into pieces of at most n runes.
func capRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	var out []string
	for len(r) > n {
		out = append(out, strings.TrimSpace(string(r[:n])))
		r = r[n:]
	}
	if tail := strings.TrimSpace(string(r)); tail != "" {
		out = append(out, tail)
	}
	return out
}
