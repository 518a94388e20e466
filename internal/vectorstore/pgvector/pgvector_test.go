package pgvector

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/domain"
)

func newMock(t *testing.T, readOnly bool) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := New(db, "cv_embeddings", readOnly)
	require.NoError(t, err)
	return st, mock
}

func TestEncodeVectorLiteral(t *testing.T) {
	lit, err := encodeVectorLiteral([]float64{0.1, -2, 3.5})
	require.NoError(t, err)
	assert.Equal(t, "[0.1,-2,3.5]", lit)

	_, err = encodeVectorLiteral(nil)
	assert.Error(t, err)
}

func TestNewRejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, err = New(db, "cv; DROP TABLE x", false)
	assert.Error(t, err)
}

func TestSearchReadOnlyTransaction(t *testing.T) {
	st, mock := newMock(t, true)
	rows := sqlmock.NewRows([]string{"id", "seq", "section", "content", "score"}).
		AddRow("default-cv:3", int64(3), "Skills", "Go and Python", 0.91).
		AddRow("default-cv:7", int64(7), "Languages", "English", 0.42)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, seq, section, content, 1 - (embedding <=> $1::vector) AS score FROM "cv_embeddings"`)).
		WithArgs("[1,0]", 2).
		WillReturnRows(rows)
	mock.ExpectCommit()

	res, err := st.Search(context.Background(), []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Skills", res[0].Chunk.Section)
	assert.Equal(t, "default-cv", res[0].Chunk.DocumentID)
	assert.Equal(t, 3, res[0].Chunk.Index)
	assert.InDelta(t, 0.91, res[0].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadOnlyRefusesWrites(t *testing.T) {
	st, mock := newMock(t, true)
	ctx := context.Background()
	assert.ErrorIs(t, st.Init(ctx, 3), domain.ErrReadOnly)
	assert.ErrorIs(t, st.Upsert(ctx, []domain.Chunk{{ID: "x", Embedding: []float64{1}}}), domain.ErrReadOnly)
	assert.ErrorIs(t, st.Clear(ctx), domain.ErrReadOnly)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWritesEveryChunk(t *testing.T) {
	st, mock := newMock(t, false)
	chunks := []domain.Chunk{
		{ID: "cv:0", DocumentID: "cv", Section: "Summary", Text: "hello", Index: 0, Embedding: []float64{1, 0}},
		{ID: "cv:1", DocumentID: "cv", Section: "Skills", Text: "go", Index: 1, Embedding: []float64{0, 1}},
	}
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "cv_embeddings"`))
	prep.ExpectExec().WithArgs("cv:0", 0, "Summary", "hello", "[1,0]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("cv:1", 1, "Skills", "go", "[0,1]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, st.Upsert(context.Background(), chunks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountMissingTable(t *testing.T) {
	st, mock := newMock(t, true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "cv_embeddings"`)).
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "cv_embeddings" does not exist`})

	_, err := st.Count(context.Background())
	assert.ErrorIs(t, err, ErrMissingTable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	st, mock := newMock(t, true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "cv_embeddings"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}
