package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS ingestion_jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps jobs as JSONB rows. Updates never overwrite a row that
// is already terminal, so a second process cannot regress a finished job.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the jobs table if needed.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, createJobsTable); err != nil {
		return nil, fmt.Errorf("create ingestion_jobs table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	const query = `
		INSERT INTO ingestion_jobs (id, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, job.ID, string(job.Status), payload, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	const query = `SELECT payload FROM ingestion_jobs WHERE id = $1`
	var payload []byte
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *PostgresStore) Update(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	const query = `
		UPDATE ingestion_jobs
		SET status = $2, payload = $3, updated_at = $4
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'partially_failed')
	`
	res, err := s.db.ExecContext(ctx, query, job.ID, string(job.Status), payload, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Get(ctx, job.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrJobFinalized, job.ID)
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
