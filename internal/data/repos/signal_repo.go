package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantrail/signals/internal/contracts"
)

// SignalRepository implements contracts.SignalRepository. Each company holds
// at most one signal row; Replace is the only write path.
type SignalRepository struct {
	pool *pgxpool.Pool
}

func NewSignalRepository(pool *pgxpool.Pool) *SignalRepository {
	return &SignalRepository{pool: pool}
}

// Replace deletes the company's current signal and, when sig is non-nil,
// inserts the new one. Delete and insert share a transaction so readers
// never observe two rows or a torn state.
func (r *SignalRepository) Replace(ctx context.Context, companyID int64, sig *contracts.Signal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM signals WHERE company_id = $1`, companyID); err != nil {
		return fmt.Errorf("failed to delete signal for company %d: %w", companyID, err)
	}

	if sig != nil {
		insert := `
			INSERT INTO signals (
				company_id, formula_id, signal_label, value,
				condition, formula_name, used_quarters, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.Exec(ctx, insert,
			companyID, sig.FormulaID, sig.Signal, sig.Value,
			sig.Metadata.Condition, sig.Metadata.FormulaName,
			sig.Metadata.UsedQuarters, sig.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert signal for company %d: %w", companyID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByCompany returns the company's current signal, or ErrSignalNotFound.
func (r *SignalRepository) GetByCompany(ctx context.Context, companyID int64) (*contracts.Signal, error) {
	query := `
		SELECT id, company_id, formula_id, signal_label, value,
		       condition, formula_name, used_quarters, updated_at
		FROM signals
		WHERE company_id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, companyID))
}

// GetByTicker resolves through the companies table for the API read path.
func (r *SignalRepository) GetByTicker(ctx context.Context, ticker string) (*contracts.Signal, error) {
	query := `
		SELECT s.id, s.company_id, s.formula_id, s.signal_label, s.value,
		       s.condition, s.formula_name, s.used_quarters, s.updated_at
		FROM signals s
		JOIN companies c ON c.id = s.company_id
		WHERE c.ticker = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, ticker))
}

func (r *SignalRepository) scanOne(row pgx.Row) (*contracts.Signal, error) {
	var sig contracts.Signal
	err := row.Scan(
		&sig.ID, &sig.CompanyID, &sig.FormulaID, &sig.Signal, &sig.Value,
		&sig.Metadata.Condition, &sig.Metadata.FormulaName,
		&sig.Metadata.UsedQuarters, &sig.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrSignalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal: %w", err)
	}
	return &sig, nil
}
