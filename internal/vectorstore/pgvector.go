package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/bull/rag-server/internal/domain"
)

// PgVectorStore keeps chunk vectors in a PostgreSQL table with the vector
// extension. Search orders by cosine distance (<=>), so hits are reported as
// domain.MetricCosineDistance.
type PgVectorStore struct {
	db        *sql.DB
	table     string
	dimension int
}

// NewPgVectorStore returns a store over table. Call EnsureSchema before use.
func NewPgVectorStore(db *sql.DB, table string, dimension int) (*PgVectorStore, error) {
	if !validIdent(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PgVectorStore{db: db, table: table, dimension: dimension}, nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// EnsureSchema creates the extension, table and HNSW index in one transaction.
func (s *PgVectorStore) EnsureSchema(ctx context.Context, inTx func(context.Context, func(*sql.Tx) error) error) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			chunk_id       TEXT PRIMARY KEY,
			document_id    TEXT NOT NULL,
			source_name    TEXT NOT NULL,
			format         TEXT NOT NULL,
			job_id         TEXT NOT NULL,
			sequence_index INTEGER NOT NULL,
			text           TEXT NOT NULL,
			header_path    TEXT NOT NULL DEFAULT '',
			start_offset   INTEGER NOT NULL,
			end_offset     INTEGER NOT NULL,
			indexed_at     TIMESTAMPTZ NOT NULL,
			embedding      vector(%d) NOT NULL
		)`, s.table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	}
	return inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("pgvector schema: %w", err)
			}
		}
		return nil
	})
}

// Metric reports the score metric Search returns.
func (s *PgVectorStore) Metric() domain.Metric {
	return domain.MetricCosineDistance
}

func (s *PgVectorStore) Upsert(ctx context.Context, chunkID string, vector []float32, meta domain.ChunkMetadata) error {
	if len(vector) != s.dimension {
		return domain.Invalid("vector", "%v: got %d dimensions, expected %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (chunk_id, document_id, source_name, format, job_id, sequence_index,
			text, header_path, start_offset, end_offset, indexed_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			source_name = EXCLUDED.source_name,
			format = EXCLUDED.format,
			job_id = EXCLUDED.job_id,
			sequence_index = EXCLUDED.sequence_index,
			text = EXCLUDED.text,
			header_path = EXCLUDED.header_path,
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			indexed_at = EXCLUDED.indexed_at,
			embedding = EXCLUDED.embedding
	`, s.table)
	_, err := s.db.ExecContext(ctx, query,
		chunkID,
		meta.DocumentID,
		meta.SourceName,
		string(meta.Format),
		meta.JobID,
		meta.SequenceIndex,
		meta.Text,
		meta.HeaderPath,
		meta.Offsets.Start,
		meta.Offsets.End,
		meta.IndexedAt.UTC(),
		pgvector.NewVector(vector),
	)
	if err != nil {
		return fmt.Errorf("pgvector upsert %s: %w", chunkID, err)
	}
	return nil
}

func (s *PgVectorStore) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error) {
	if len(vector) != s.dimension {
		return nil, domain.Invalid("vector", "%v: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	query := fmt.Sprintf(`
		SELECT chunk_id, document_id, source_name, format, job_id, sequence_index,
			text, header_path, start_offset, end_offset, indexed_at,
			embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, s.table)
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var (
			h      domain.SearchHit
			format string
		)
		m := &h.Metadata
		if err := rows.Scan(&h.ChunkID, &m.DocumentID, &m.SourceName, &format, &m.JobID, &m.SequenceIndex,
			&m.Text, &m.HeaderPath, &m.Offsets.Start, &m.Offsets.End, &m.IndexedAt, &h.Score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		m.Format = domain.Format(format)
		h.Metric = domain.MetricCosineDistance
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector rows: %w", err)
	}
	return hits, nil
}

// DeleteDocument removes every chunk of a document.
func (s *PgVectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.table), documentID)
	if err != nil {
		return fmt.Errorf("pgvector delete %s: %w", documentID, err)
	}
	return nil
}

// Health pings the database.
func (s *PgVectorStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
