package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/domain"
)

func TestPointIDStable(t *testing.T) {
	assert.Equal(t, PointID("default-cv:0"), PointID("default-cv:0"))
	assert.NotEqual(t, PointID("default-cv:0"), PointID("default-cv:1"))
	assert.Len(t, PointID("x"), 36)
}

func TestSearchDecodesPayloadAndSortsTies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/cv/points/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 2, req["limit"])
		w.Write([]byte(`{"result":[
			{"score":0.5,"payload":{"chunk_id":"cv:4","document_id":"cv","section":"Skills","index":4,"text":"b"}},
			{"score":0.5,"payload":{"chunk_id":"cv:1","document_id":"cv","section":"Summary","index":1,"text":"a"}}
		]}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "cv"})
	res, err := s.Search(context.Background(), []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "cv:1", res[0].Chunk.ID)
	assert.Equal(t, "Summary", res[0].Chunk.Section)
	assert.Equal(t, "cv:4", res[1].Chunk.ID)
}

func TestErrorsAreClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/cv/points/count":
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			http.Error(w, "missing", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "cv"})
	_, err := s.Count(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))

	_, err = s.Search(context.Background(), []float64{1}, 1)
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))

	assert.NoError(t, s.Clear(context.Background()), "missing collection")
}

func TestUpsertSendsPoints(t *testing.T) {
	var got struct {
		Points []struct {
			ID      string         `json:"id"`
			Vector  []float64      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/cv/points", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"result":{"status":"completed"}}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "cv"})
	err := s.Upsert(context.Background(), []domain.Chunk{{ID: "cv:0", Section: "Summary", Text: "hi", Embedding: []float64{0.5, 0.5}}})
	require.NoError(t, err)
	require.Len(t, got.Points, 1)
	assert.Equal(t, PointID("cv:0"), got.Points[0].ID)
	assert.Equal(t, "Summary", got.Points[0].Payload["section"])
}

func TestReadOnly(t *testing.T) {
	s := NewStorage(Config{URL: "http://127.0.0.1:1", ReadOnly: true})
	assert.ErrorIs(t, s.Init(context.Background(), 3), domain.ErrReadOnly)
	assert.ErrorIs(t, s.Clear(context.Background()), domain.ErrReadOnly)
}
