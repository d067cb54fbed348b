package repos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantrail/signals/internal/contracts"
)

// FormulaRepository implements contracts.FormulaRepository on Postgres. The
// kind tag is decided here, once per load, so evaluation never re-sniffs
// condition text.
type FormulaRepository struct {
	pool *pgxpool.Pool
}

func NewFormulaRepository(pool *pgxpool.Pool) *FormulaRepository {
	return &FormulaRepository{pool: pool}
}

// ListEnabled returns every enabled formula ordered by priority then id.
func (r *FormulaRepository) ListEnabled(ctx context.Context) ([]*contracts.Formula, error) {
	query := `
		SELECT id, name, scope, scope_value, condition, signal_label,
		       priority, enabled, formula_type
		FROM formulas
		WHERE enabled = TRUE
		ORDER BY priority, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query formulas: %w", err)
	}
	defer rows.Close()

	var formulas []*contracts.Formula
	for rows.Next() {
		var f contracts.Formula
		err := rows.Scan(
			&f.ID, &f.Name, &f.Scope, &f.ScopeValue, &f.Condition,
			&f.Signal, &f.Priority, &f.Enabled, &f.Type,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan formula row: %w", err)
		}
		f.Kind = contracts.DetectKind(f.Type, f.Condition)
		formulas = append(formulas, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating formula rows: %w", err)
	}
	return formulas, nil
}
