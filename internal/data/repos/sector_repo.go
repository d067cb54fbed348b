package repos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantrail/signals/internal/contracts"
)

// SectorRepository implements contracts.SectorRepository on Postgres.
type SectorRepository struct {
	pool *pgxpool.Pool
}

func NewSectorRepository(pool *pgxpool.Pool) *SectorRepository {
	return &SectorRepository{pool: pool}
}

// Map returns every sector keyed by id.
func (r *SectorRepository) Map(ctx context.Context) (map[int64]*contracts.Sector, error) {
	query := `
		SELECT id, name, assigned_formula_id
		FROM sectors
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sectors: %w", err)
	}
	defer rows.Close()

	sectors := make(map[int64]*contracts.Sector)
	for rows.Next() {
		var s contracts.Sector
		if err := rows.Scan(&s.ID, &s.Name, &s.AssignedFormulaID); err != nil {
			return nil, fmt.Errorf("failed to scan sector row: %w", err)
		}
		sectors[s.ID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sector rows: %w", err)
	}
	return sectors, nil
}
