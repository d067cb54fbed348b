package repos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantrail/signals/internal/contracts"
)

// CompanyRepository implements contracts.CompanyRepository on Postgres.
// Companies carry their flat metric snapshot as jsonb; market cap lives on
// its own decimal column and is read back as text to avoid float drift.
type CompanyRepository struct {
	pool *pgxpool.Pool
}

func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepository {
	return &CompanyRepository{pool: pool}
}

const companyColumns = `
	c.id, c.ticker, c.name, c.sector_id, c.assigned_formula_id,
	c.financial_data, c.market_cap::text, c.updated_at
`

// List returns every company ordered by ticker.
func (r *CompanyRepository) List(ctx context.Context) ([]*contracts.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies c
		ORDER BY c.ticker
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	return scanCompanies(rows)
}

// GetByIDs returns the companies for an explicit id list. Any id that does
// not resolve fails the whole call with ErrCompanyNotFound.
func (r *CompanyRepository) GetByIDs(ctx context.Context, ids []int64) ([]*contracts.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies c
		WHERE c.id = ANY($1)
		ORDER BY c.ticker
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies by id: %w", err)
	}
	defer rows.Close()

	companies, err := scanCompanies(rows)
	if err != nil {
		return nil, err
	}

	found := make(map[int64]bool, len(companies))
	for _, c := range companies {
		found[c.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("%w: id %d", contracts.ErrCompanyNotFound, id)
		}
	}
	return companies, nil
}

// FindStale returns companies whose current signal is missing or older than
// the company's own updated_at.
func (r *CompanyRepository) FindStale(ctx context.Context) ([]*contracts.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies c
		LEFT JOIN signals s ON s.company_id = c.id
		WHERE s.id IS NULL OR s.updated_at < c.updated_at
		ORDER BY c.ticker
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale companies: %w", err)
	}
	defer rows.Close()

	return scanCompanies(rows)
}

// GetByTicker returns a single company, or ErrCompanyNotFound.
func (r *CompanyRepository) GetByTicker(ctx context.Context, ticker string) (*contracts.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies c
		WHERE c.ticker = $1
	`

	rows, err := r.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query company %s: %w", ticker, err)
	}
	defer rows.Close()

	companies, err := scanCompanies(rows)
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, fmt.Errorf("%w: ticker %s", contracts.ErrCompanyNotFound, ticker)
	}
	return companies[0], nil
}

// SaveFinancials replaces a company's metric snapshot and market cap, and
// advances updated_at so the staleness query picks the company up.
func (r *CompanyRepository) SaveFinancials(ctx context.Context, ticker string, data contracts.FinancialData, marketCap string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode financial data: %w", err)
	}

	query := `
		UPDATE companies
		SET financial_data = $2,
		    market_cap = NULLIF($3, '')::numeric,
		    updated_at = NOW()
		WHERE ticker = $1
	`

	tag, err := r.pool.Exec(ctx, query, ticker, payload, marketCap)
	if err != nil {
		return fmt.Errorf("failed to save financials for %s: %w", ticker, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: ticker %s", contracts.ErrCompanyNotFound, ticker)
	}
	return nil
}

func scanCompanies(rows pgx.Rows) ([]*contracts.Company, error) {
	var companies []*contracts.Company
	for rows.Next() {
		var (
			c         contracts.Company
			financial []byte
			marketCap *string
		)
		err := rows.Scan(
			&c.ID, &c.Ticker, &c.Name, &c.SectorID, &c.AssignedFormulaID,
			&financial, &marketCap, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company row: %w", err)
		}

		c.FinancialData = make(contracts.FinancialData)
		if len(financial) > 0 {
			if err := json.Unmarshal(financial, &c.FinancialData); err != nil {
				return nil, fmt.Errorf("failed to decode financial data for %s: %w", c.Ticker, err)
			}
		}
		if marketCap != nil {
			c.MarketCap = *marketCap
		}
		companies = append(companies, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company rows: %w", err)
	}
	return companies, nil
}
