package contracts

import "context"

// CompanyRepository provides read access to companies plus the ingest-side
// writes that advance updated_at.
type CompanyRepository interface {
	// List returns every company.
	List(ctx context.Context) ([]*Company, error)

	// GetByIDs returns the companies for an explicit id list. Any missing
	// id fails the whole call with ErrCompanyNotFound.
	GetByIDs(ctx context.Context, ids []int64) ([]*Company, error)

	// FindStale returns companies whose signal is missing or predates the
	// company's own updated_at.
	FindStale(ctx context.Context) ([]*Company, error)
}

// SectorRepository provides sector lookups for the override hierarchy.
type SectorRepository interface {
	// Map returns all sectors keyed by id.
	Map(ctx context.Context) (map[int64]*Sector, error)
}

// FormulaRepository provides read access to stored formulas.
type FormulaRepository interface {
	// ListEnabled returns every enabled formula with its kind tag set.
	ListEnabled(ctx context.Context) ([]*Formula, error)
}

// SignalRepository owns the signal table.
type SignalRepository interface {
	// Replace atomically deletes the company's current signal and, when
	// sig is non-nil, inserts the new one. One transaction per company.
	Replace(ctx context.Context, companyID int64, sig *Signal) error

	// GetByCompany returns the current signal, or ErrSignalNotFound.
	GetByCompany(ctx context.Context, companyID int64) (*Signal, error)
}

// QuarterlyRepository provides the quarterly time series consumed by the
// expression evaluator.
type QuarterlyRepository interface {
	// LatestQuarters returns up to limit quarter labels for the ticker,
	// newest first.
	LatestQuarters(ctx context.Context, ticker string, limit int) ([]string, error)

	// SeriesWindow returns the ticker's metric series restricted to the
	// given quarter window (newest first).
	SeriesWindow(ctx context.Context, ticker string, window []string) (*QuarterSeries, error)
}

// ExpressionResultType tags the value an expression produced.
type ExpressionResultType string

const (
	ResultBoolean ExpressionResultType = "boolean"
	ResultNumber  ExpressionResultType = "number"
	ResultString  ExpressionResultType = "string"
	ResultBlank   ExpressionResultType = "blank"
)

// ExpressionResult is the return shape of the excel-style evaluator.
type ExpressionResult struct {
	Value        interface{}          `json:"result"`
	Type         ExpressionResultType `json:"result_type"`
	UsedQuarters []string             `json:"used_quarters"`
}

// ExpressionEvaluator executes excel-style formula text against a ticker's
// quarterly series, restricted to the supplied quarter window (newest
// first). It reports back exactly which window labels the formula consulted.
type ExpressionEvaluator interface {
	Evaluate(ctx context.Context, ticker, expression string, window []string) (*ExpressionResult, error)
}
