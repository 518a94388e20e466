package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"cvrag/internal/domain"
)

// ErrMissingTable is returned by Count when the embeddings table does not exist.
var ErrMissingTable = errors.New("vector table does not exist")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store keeps chunk embeddings in a Postgres table with the pgvector extension.
// A read-only store refuses writes and runs queries in read-only transactions.
type Store struct {
	db       *sql.DB
	table    string
	readOnly bool
}

// Options configures Open.
type Options struct {
	Table          string
	ReadOnly       bool
	ConnectTimeout time.Duration
}

// Open connects to dsn and verifies the connection within ConnectTimeout.
// The returned store is usable even when the ping fails so health checks can
// retry later; callers inspect the error to decide on a fallback.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	st, err := New(db, opts.Table, opts.ReadOnly)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		return st, fmt.Errorf("ping postgres: %w", err)
	}
	return st, nil
}

// New wraps an existing handle.
func New(db *sql.DB, table string, readOnly bool) (*Store, error) {
	if table == "" {
		table = "cv_embeddings"
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{db: db, table: pq.QuoteIdentifier(table), readOnly: readOnly}, nil
}

func (s *Store) Name() string { return "pgvector" }

// Init is a no-op beyond the read-only check; the schema is owned by migrations.
func (s *Store) Init(_ context.Context, dimension int) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, seq, section, content, embedding, metadata)
VALUES ($1,$2,$3,$4,$5::vector,$6)
ON CONFLICT (id) DO UPDATE SET
  seq = EXCLUDED.seq,
  section = EXCLUDED.section,
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding,
  metadata = EXCLUDED.metadata;
`, s.table))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ch := range chunks {
		lit, err := encodeVectorLiteral(ch.Embedding)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", ch.ID, err)
		}
		meta, err := json.Marshal(map[string]any{"title": ch.Section, "source": "cv", "document_id": ch.DocumentID})
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.Index, ch.Section, ch.Text, lit, meta); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// Search returns the topK rows closest by cosine distance. Score is
// 1 - distance; equal distances are ordered by seq.
func (s *Store) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 4
	}
	lit, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
SELECT id, seq, section, content, 1 - (embedding <=> $1::vector) AS score
FROM %s
ORDER BY embedding <=> $1::vector, seq
LIMIT $2
`, s.table), lit, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SearchResult
	for rows.Next() {
		var (
			r   domain.SearchResult
			seq int64
		)
		if err := rows.Scan(&r.Chunk.ID, &seq, &r.Chunk.Section, &r.Chunk.Text, &r.Score); err != nil {
			return nil, err
		}
		r.Chunk.Index = int(seq)
		if i := strings.LastIndexByte(r.Chunk.ID, ':'); i > 0 {
			r.Chunk.DocumentID = r.Chunk.ID[:i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
			return 0, ErrMissingTable
		}
		return 0, err
	}
	return n, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func encodeVectorLiteral(vec []float64) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(f, 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
