package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/signals/internal/contracts"
)

const samplePage = `
<html><body>
<table class="summary">
  <tr><td>P/E Ratio</td><td>15.2</td></tr>
  <tr><td>ROE</td><td>18.5%</td></tr>
  <tr><td>Debt to Equity</td><td>0.4</td></tr>
  <tr><td>Market Cap</td><td>1,250,000,000</td></tr>
  <tr><td>Some Unknown Row</td><td>99</td></tr>
</table>
<table class="quarterly">
  <thead>
    <tr><th>Metric</th><th>2026Q2</th><th>2026Q1</th><th>2025Q4</th></tr>
  </thead>
  <tbody>
    <tr><td>Revenue</td><td>130.0</td><td>120.0</td><td>110.0</td></tr>
    <tr><td>NetIncome</td><td>13.0</td><td>-</td><td>11.0</td></tr>
  </tbody>
</table>
</body></html>`

func TestParseFundamentals(t *testing.T) {
	report, err := ParseFundamentals("ACME", []byte(samplePage))
	require.NoError(t, err)

	assert.Equal(t, "ACME", report.Ticker)
	assert.Equal(t, "1250000000", report.MarketCap)

	assert.Equal(t, 15.2, report.Snapshot[contracts.MetricPE])
	assert.Equal(t, 18.5, report.Snapshot[contracts.MetricROE])
	assert.Equal(t, 0.4, report.Snapshot[contracts.MetricDebt])

	// Unknown summary labels are ignored, not errors.
	assert.Len(t, report.Snapshot, 3)

	// The dash in 2026Q1 net income stays absent rather than zero.
	require.Len(t, report.Rows, 5)
	byKey := make(map[string]float64)
	for _, row := range report.Rows {
		byKey[row.Metric+"/"+row.Quarter] = row.Value
	}
	assert.Equal(t, 130.0, byKey["Revenue/2026Q2"])
	assert.Equal(t, 110.0, byKey["Revenue/2025Q4"])
	assert.Equal(t, 13.0, byKey["NetIncome/2026Q2"])
	assert.NotContains(t, byKey, "NetIncome/2026Q1")
}

func TestParseFundamentalsEmptyPage(t *testing.T) {
	_, err := ParseFundamentals("ACME", []byte(`<html><body><p>down for maintenance</p></body></html>`))
	assert.Error(t, err)
}
