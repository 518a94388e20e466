package service

import (
	"math"
	"sort"
	"sync"

	"cvrag/internal/domain"
	"cvrag/internal/textutil"
)

// LexicalIndex ranks chunks by token overlap with the query. It backs
// retrieval when the embedding of a query carries no signal.
type LexicalIndex struct {
	mu     sync.RWMutex
	chunks []domain.Chunk
	sets   []map[string]struct{}
}

func NewLexicalIndex() *LexicalIndex { return &LexicalIndex{} }

// Set replaces the indexed chunks.
func (l *LexicalIndex) Set(chunks []domain.Chunk) {
	sets := make([]map[string]struct{}, len(chunks))
	for i, ch := range chunks {
		sets[i] = textutil.TokenSet(ch.Text)
	}
	l.mu.Lock()
	l.chunks = append([]domain.Chunk(nil), chunks...)
	l.sets = sets
	l.mu.Unlock()
}

func (l *LexicalIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chunks)
}

// Search scores every chunk with the Ochiai coefficient. Equal scores keep
// chunk order.
func (l *LexicalIndex) Search(query string, topK int) []domain.SearchResult {
	qset := textutil.TokenSet(query)
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.SearchResult, len(l.chunks))
	for i, ch := range l.chunks {
		c := ch
		c.Embedding = nil
		out[i] = domain.SearchResult{Chunk: c, Score: ochiai(qset, l.sets[i])}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK <= 0 {
		topK = 4
	}
	if topK > len(out) {
		topK = len(out)
	}
	return out[:topK]
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
