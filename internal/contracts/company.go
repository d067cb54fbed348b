package contracts

import (
	"strconv"
	"time"
)

// Metric is a canonical financial metric key. FinancialData maps are keyed
// by this closed set; loose user-facing names are resolved to it through the
// alias table in the formula package.
type Metric string

const (
	MetricPE             Metric = "pe"
	MetricPB             Metric = "pb"
	MetricROE            Metric = "roe"
	MetricROA            Metric = "roa"
	MetricDebt           Metric = "debt"
	MetricNetIncome      Metric = "netIncome"
	MetricRevenue        Metric = "revenue"
	MetricEPS            Metric = "eps"
	MetricGrossMargin    Metric = "grossMargin"
	MetricOperatingMargin Metric = "operatingMargin"
	MetricCurrentRatio   Metric = "currentRatio"
	MetricDividendYield  Metric = "dividendYield"

	// MetricMarketCap is carried on its own column, not in FinancialData.
	MetricMarketCap Metric = "marketCap"
)

// Metrics lists every canonical metric stored in FinancialData.
func Metrics() []Metric {
	return []Metric{
		MetricPE, MetricPB, MetricROE, MetricROA, MetricDebt,
		MetricNetIncome, MetricRevenue, MetricEPS, MetricGrossMargin,
		MetricOperatingMargin, MetricCurrentRatio, MetricDividendYield,
	}
}

// FinancialData holds a company's latest flat metric snapshot. An absent key
// means the value was never reported; predicates over absent values evaluate
// to false rather than failing.
type FinancialData map[Metric]float64

// Company is a single evaluated entity. UpdatedAt advances on every data
// mutation and is the sole staleness trigger for its signal.
type Company struct {
	ID                int64         `json:"id"`
	Ticker            string        `json:"ticker"`
	Name              string        `json:"name"`
	SectorID          *int64        `json:"sector_id,omitempty"`
	AssignedFormulaID *int64        `json:"assigned_formula_id,omitempty"`
	FinancialData     FinancialData `json:"financial_data"`
	MarketCap         string        `json:"market_cap"` // decimal string
	UpdatedAt         time.Time     `json:"updated_at"`
}

// MarketCapValue parses the decimal market cap column.
func (c *Company) MarketCapValue() (float64, bool) {
	if c.MarketCap == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(c.MarketCap, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// MetricValue resolves a canonical metric against the company record.
func (c *Company) MetricValue(m Metric) (float64, bool) {
	if m == MetricMarketCap {
		return c.MarketCapValue()
	}
	v, ok := c.FinancialData[m]
	return v, ok
}

// Sector groups companies and may carry a formula override.
type Sector struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	AssignedFormulaID *int64 `json:"assigned_formula_id,omitempty"`
}
