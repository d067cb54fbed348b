package repos

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/internal/jobs"
)

// testPool connects to the database named by TEST_DATABASE_URL. The schema
// from migrations/schema.sql must be applied.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), connString)
	require.NoError(t, err, "database connection failed")
	t.Cleanup(pool.Close)
	return pool
}

func insertCompany(t *testing.T, pool *pgxpool.Pool, ticker string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO companies (ticker, name, financial_data)
		VALUES ($1, $2, '{"pe": 10, "roe": 15}'::jsonb)
		RETURNING id
	`, ticker, "Test "+ticker).Scan(&id)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM companies WHERE id = $1`, id)
	})
	return id
}

func TestSignalRepositoryReplace(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewSignalRepository(pool)

	ticker := fmt.Sprintf("IT%d", time.Now().UnixNano()%1_000_000)
	companyID := insertCompany(t, pool, ticker)

	value := 3.5
	sig := &contracts.Signal{
		CompanyID: companyID,
		FormulaID: 1,
		Signal:    "BUY",
		Value:     &value,
		Metadata: contracts.SignalMetadata{
			Condition:    "pe < 15",
			FormulaName:  "value pick",
			UsedQuarters: []string{"2026Q2", "2026Q1"},
		},
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Replace(ctx, companyID, sig))

	got, err := repo.GetByCompany(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, "BUY", got.Signal)
	require.NotNil(t, got.Value)
	assert.Equal(t, 3.5, *got.Value)
	assert.Equal(t, []string{"2026Q2", "2026Q1"}, got.Metadata.UsedQuarters)

	// Second replace keeps exactly one row.
	sig.Signal = "SELL"
	require.NoError(t, repo.Replace(ctx, companyID, sig))

	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM signals WHERE company_id = $1`, companyID).Scan(&count))
	assert.Equal(t, 1, count)

	// Replace with nil deletes without inserting.
	require.NoError(t, repo.Replace(ctx, companyID, nil))
	_, err = repo.GetByCompany(ctx, companyID)
	assert.ErrorIs(t, err, contracts.ErrSignalNotFound)

	_, err = repo.GetByTicker(ctx, ticker)
	assert.ErrorIs(t, err, contracts.ErrSignalNotFound)
}

func TestCompanyRepositoryFindStale(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	companies := NewCompanyRepository(pool)
	sigRepo := NewSignalRepository(pool)

	ticker := fmt.Sprintf("ST%d", time.Now().UnixNano()%1_000_000)
	companyID := insertCompany(t, pool, ticker)

	hasTicker := func(list []*contracts.Company) bool {
		for _, c := range list {
			if c.Ticker == ticker {
				return true
			}
		}
		return false
	}

	// No signal row yet, so the company is stale.
	stale, err := companies.FindStale(ctx)
	require.NoError(t, err)
	assert.True(t, hasTicker(stale), "company without signal should be stale")

	// A fresh signal clears staleness.
	require.NoError(t, sigRepo.Replace(ctx, companyID, &contracts.Signal{
		CompanyID: companyID,
		FormulaID: 1,
		Signal:    "HOLD",
		UpdatedAt: time.Now().UTC().Add(time.Minute),
	}))
	stale, err = companies.FindStale(ctx)
	require.NoError(t, err)
	assert.False(t, hasTicker(stale), "fresh signal should not be stale")

	// Advancing the company's updated_at makes it stale again.
	require.NoError(t, companies.SaveFinancials(ctx, ticker,
		contracts.FinancialData{contracts.MetricPE: 9}, "5000000"))
	_, err = pool.Exec(ctx,
		`UPDATE signals SET updated_at = NOW() - INTERVAL '1 hour' WHERE company_id = $1`, companyID)
	require.NoError(t, err)

	stale, err = companies.FindStale(ctx)
	require.NoError(t, err)
	assert.True(t, hasTicker(stale), "data newer than signal should be stale")
}

func TestCompanyRepositoryGetByIDsMissing(t *testing.T) {
	pool := testPool(t)
	repo := NewCompanyRepository(pool)

	_, err := repo.GetByIDs(context.Background(), []int64{-1})
	assert.ErrorIs(t, err, contracts.ErrCompanyNotFound)
}

func TestQuarterlyRepositoryWindow(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewQuarterlyRepository(pool)

	ticker := fmt.Sprintf("QT%d", time.Now().UnixNano()%1_000_000)
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM quarterly_data WHERE ticker = $1`, ticker)
	})

	rows := []contracts.QuarterRow{
		{Ticker: ticker, Quarter: "2026Q2", Metric: "Revenue", Value: 130},
		{Ticker: ticker, Quarter: "2026Q1", Metric: "Revenue", Value: 120},
		{Ticker: ticker, Quarter: "2025Q4", Metric: "Revenue", Value: 110},
		{Ticker: ticker, Quarter: "2026Q2", Metric: "NetIncome", Value: 13},
	}
	require.NoError(t, repo.Upsert(ctx, rows))

	quarters, err := repo.LatestQuarters(ctx, ticker, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026Q2", "2026Q1"}, quarters)

	series, err := repo.SeriesWindow(ctx, ticker, quarters)
	require.NoError(t, err)

	v, ok := series.Lookup("revenue", 0)
	require.True(t, ok)
	assert.Equal(t, 130.0, v)

	// 2025Q4 is outside the window.
	_, ok = series.Lookup("revenue", 2)
	assert.False(t, ok)

	// Upsert overwrites on conflict.
	require.NoError(t, repo.Upsert(ctx, []contracts.QuarterRow{
		{Ticker: ticker, Quarter: "2026Q2", Metric: "Revenue", Value: 135},
	}))
	series, err = repo.SeriesWindow(ctx, ticker, quarters)
	require.NoError(t, err)
	v, _ = series.Lookup("revenue", 0)
	assert.Equal(t, 135.0, v)
}

func TestJobRepositoryRoundtrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewJobRepository(pool)

	id := fmt.Sprintf("test-job-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM signal_jobs WHERE id = $1`, id)
	})

	job := &jobs.Job{
		ID:         id,
		Kind:       jobs.KindFull,
		BatchSize:  50,
		Status:     jobs.StatusPending,
		EnqueuedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Save(ctx, job))

	// Progress writeback updates in place.
	started := time.Now().UTC().Truncate(time.Microsecond)
	job.Status = jobs.StatusProcessing
	job.StartedAt = &started
	job.Total = 10
	job.Processed = 4
	job.Progress = 40
	require.NoError(t, repo.Save(ctx, job))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
	require.NotNil(t, got.StartedAt)

	_, err = repo.Get(ctx, "missing-"+id)
	assert.ErrorIs(t, err, contracts.ErrJobNotFound)
}
