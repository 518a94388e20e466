package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"cvrag/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Searches share a read lock; ingestion holds the write lock.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	chunks    []domain.Chunk
	norms     []float64
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Name() string { return "memory" }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.chunks = nil
	s.norms = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		if len(ch.Embedding) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for _, ch := range chunks {
		s.chunks = append(s.chunks, ch)
		s.norms = append(s.norms, norm(ch.Embedding))
	}
	return nil
}

// Search ranks every chunk by cosine similarity. Equal scores keep
// insertion order.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 4
	}
	if len(s.chunks) > 0 && len(vector) != s.dimension {
		return nil, errors.New("query dimension mismatch")
	}
	qn := norm(vector)
	results := make([]domain.SearchResult, len(s.chunks))
	for i, ch := range s.chunks {
		score := 0.0
		if qn > 0 && s.norms[i] > 0 {
			score = dot(ch.Embedding, vector) / (qn * s.norms[i])
		}
		results[i] = domain.SearchResult{Chunk: ch, Score: score}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.norms = nil
	return nil
}

func (s *Storage) Ping(context.Context) error { return nil }

func (s *Storage) Close() error { return nil }

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
