package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/internal/jobs"
)

// JobRepository implements jobs.JobStore on Postgres so terminal jobs stay
// queryable across restarts.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Save upserts the full job record. The queue calls this on every batch.
func (r *JobRepository) Save(ctx context.Context, job *jobs.Job) error {
	query := `
		INSERT INTO signal_jobs (
			id, kind, company_ids, batch_size, status,
			total, processed, signals_generated, progress, error,
			enqueued_at, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			processed = EXCLUDED.processed,
			signals_generated = EXCLUDED.signals_generated,
			progress = EXCLUDED.progress,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Kind), job.CompanyIDs, job.BatchSize, string(job.Status),
		job.Total, job.Processed, job.SignalsGenerated, job.Progress, job.Error,
		job.EnqueuedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns a job record, or ErrJobNotFound.
func (r *JobRepository) Get(ctx context.Context, id string) (*jobs.Job, error) {
	query := `
		SELECT id, kind, company_ids, batch_size, status,
		       total, processed, signals_generated, progress, error,
		       enqueued_at, started_at, finished_at
		FROM signal_jobs
		WHERE id = $1
	`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrJobNotFound
	}
	return job, err
}

// Recent returns the newest job records, most recently enqueued first.
func (r *JobRepository) Recent(ctx context.Context, limit int) ([]*jobs.Job, error) {
	query := `
		SELECT id, kind, company_ids, batch_size, status,
		       total, processed, signals_generated, progress, error,
		       enqueued_at, started_at, finished_at
		FROM signal_jobs
		ORDER BY enqueued_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (*jobs.Job, error) {
	var (
		job    jobs.Job
		kind   string
		status string
	)
	err := row.Scan(
		&job.ID, &kind, &job.CompanyIDs, &job.BatchSize, &status,
		&job.Total, &job.Processed, &job.SignalsGenerated, &job.Progress, &job.Error,
		&job.EnqueuedAt, &job.StartedAt, &job.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job row: %w", err)
	}
	job.Kind = jobs.Kind(kind)
	job.Status = jobs.Status(status)
	return &job, nil
}
