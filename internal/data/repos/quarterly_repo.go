package repos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantrail/signals/internal/contracts"
)

// QuarterlyRepository implements contracts.QuarterlyRepository. Quarter
// labels sort chronologically as text ("2025Q3"), so ordering is done in
// SQL.
type QuarterlyRepository struct {
	pool *pgxpool.Pool
}

func NewQuarterlyRepository(pool *pgxpool.Pool) *QuarterlyRepository {
	return &QuarterlyRepository{pool: pool}
}

// LatestQuarters returns up to limit distinct quarter labels for the ticker,
// newest first.
func (r *QuarterlyRepository) LatestQuarters(ctx context.Context, ticker string, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT quarter
		FROM quarterly_data
		WHERE ticker = $1
		ORDER BY quarter DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarters for %s: %w", ticker, err)
	}
	defer rows.Close()

	var quarters []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("failed to scan quarter row: %w", err)
		}
		quarters = append(quarters, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quarter rows: %w", err)
	}
	return quarters, nil
}

// SeriesWindow returns the ticker's metric series restricted to the given
// window.
func (r *QuarterlyRepository) SeriesWindow(ctx context.Context, ticker string, window []string) (*contracts.QuarterSeries, error) {
	if len(window) == 0 {
		return contracts.NewQuarterSeries(nil, nil), nil
	}

	query := `
		SELECT ticker, quarter, metric, value
		FROM quarterly_data
		WHERE ticker = $1 AND quarter = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, ticker, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarterly series for %s: %w", ticker, err)
	}
	defer rows.Close()

	var raw []contracts.QuarterRow
	for rows.Next() {
		var row contracts.QuarterRow
		if err := rows.Scan(&row.Ticker, &row.Quarter, &row.Metric, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan quarterly row: %w", err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quarterly rows: %w", err)
	}

	return contracts.NewQuarterSeries(window, raw), nil
}

// Upsert writes a batch of quarterly observations in one transaction. Used
// by the ingest poller.
func (r *QuarterlyRepository) Upsert(ctx context.Context, rowsIn []contracts.QuarterRow) error {
	if len(rowsIn) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO quarterly_data (ticker, quarter, metric, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticker, quarter, metric) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, row := range rowsIn {
		batch.Queue(query, row.Ticker, row.Quarter, row.Metric, row.Value)
	}

	results := tx.SendBatch(ctx, batch)
	for range rowsIn {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to upsert quarterly row: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
