package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"cvrag/internal/domain"
	"cvrag/internal/retry"
)

// Storage is a minimal REST client to Qdrant.
// Point ids are name-based UUIDs derived from chunk ids so re-ingestion
// overwrites instead of duplicating.
type Storage struct {
	url        string
	apiKey     string
	collection string
	distance   string
	readOnly   bool
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	ReadOnly   bool
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "cv_embeddings"
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   cfg.Distance,
		readOnly:   cfg.ReadOnly,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Name() string { return "qdrant" }

// Init creates the collection. An existing collection is left as is.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.distance,
		},
	}
	err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	if statusOf(err) == http.StatusConflict {
		return nil
	}
	return err
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		points[i] = map[string]any{
			"id":     PointID(ch.ID),
			"vector": ch.Embedding,
			"payload": map[string]any{
				"chunk_id":    ch.ID,
				"document_id": ch.DocumentID,
				"section":     ch.Section,
				"index":       ch.Index,
				"text":        ch.Text,
			},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Search returns the topK nearest points. Equal scores are ordered by chunk index.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 4
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID    string `json:"chunk_id"`
				DocumentID string `json:"document_id"`
				Section    string `json:"section"`
				Index      int    `json:"index"`
				Text       string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				ID:         r.Payload.ChunkID,
				DocumentID: r.Payload.DocumentID,
				Section:    r.Payload.Section,
				Index:      r.Payload.Index,
				Text:       r.Payload.Text,
			},
			Score: r.Score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection; a missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if statusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, s.url+"/healthz", nil, nil)
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// PointID maps a chunk id to the UUID used as the Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("cvrag:"+chunkID)).String()
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

type statusError struct {
	method string
	url    string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.code, e.body)
}

func statusOf(err error) int {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		err = ue.Err
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return retry.Classify(domain.OpVectorSearch, 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &statusError{method: method, url: url, code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
		return retry.Classify(domain.OpVectorSearch, resp.StatusCode, se)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
