package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/signals/internal/contracts"
)

func testCompany(data contracts.FinancialData) *contracts.Company {
	return &contracts.Company{
		ID:            1,
		Ticker:        "ACME",
		FinancialData: data,
	}
}

func TestEvaluateSimple_AndChain(t *testing.T) {
	company := testCompany(contracts.FinancialData{
		contracts.MetricROE:  0.25,
		contracts.MetricDebt: 0.3,
	})

	result, err := EvaluateSimple(company, "roe > 0.20 and debt < 0.5")
	require.NoError(t, err)
	assert.True(t, result)

	company.FinancialData[contracts.MetricDebt] = 0.6
	result, err = EvaluateSimple(company, "roe > 0.20 and debt < 0.5")
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluateSimple_OrChainWithMissingField(t *testing.T) {
	company := testCompany(contracts.FinancialData{
		contracts.MetricROE: 12.0,
	})

	// pe is missing entirely; the clause is false, not an error.
	result, err := EvaluateSimple(company, "roe > 10 or pe < 5")
	require.NoError(t, err)
	assert.True(t, result)

	company.FinancialData[contracts.MetricROE] = 8.0
	result, err = EvaluateSimple(company, "roe > 10 or pe < 5")
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluateSimple_MixedOperatorsRejected(t *testing.T) {
	company := testCompany(contracts.FinancialData{})

	_, err := EvaluateSimple(company, "roe > 10 and pe < 5 or debt > 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInvalidFormula)
}

func TestEvaluateSimple_SingleClause(t *testing.T) {
	company := testCompany(contracts.FinancialData{
		contracts.MetricPE: 4.2,
	})

	result, err := EvaluateSimple(company, "pe < 5")
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateSimple_CaseInsensitiveSeparators(t *testing.T) {
	company := testCompany(contracts.FinancialData{
		contracts.MetricROE:  0.3,
		contracts.MetricDebt: 0.1,
	})

	result, err := EvaluateSimple(company, "roe > 0.2 AND debt < 0.5")
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateSimple_EqualityEpsilon(t *testing.T) {
	company := testCompany(contracts.FinancialData{
		contracts.MetricROE: 0.20000001,
	})

	result, err := EvaluateSimple(company, "roe = 0.2")
	require.NoError(t, err)
	assert.True(t, result, "values within epsilon compare equal")

	result, err = EvaluateSimple(company, "roe != 0.2")
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluateSimple_MarketCapFromColumn(t *testing.T) {
	company := testCompany(contracts.FinancialData{})
	company.MarketCap = "1500000000.50"

	result, err := EvaluateSimple(company, "market_cap > 1000000000")
	require.NoError(t, err)
	assert.True(t, result)

	// Unparseable market cap means the clause is false, not an error.
	company.MarketCap = "n/a"
	result, err = EvaluateSimple(company, "market_cap > 0")
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluateSimple_FieldAliases(t *testing.T) {
	company := testCompany(contracts.FinancialData{
		contracts.MetricPE:        12,
		contracts.MetricDebt:      0.4,
		contracts.MetricNetIncome: 5000,
	})

	tests := []struct {
		condition string
		want      bool
	}{
		{"PE_Ratio < 15", true},
		{"peratio < 15", true},
		{"debt_to_equity < 0.5", true},
		{"debttoe < 0.5", true},
		{"net_income > 1000", true},
		{"NetIncome > 10000", false},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			result, err := EvaluateSimple(company, tt.condition)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestEvaluateSimple_UnknownField(t *testing.T) {
	company := testCompany(contracts.FinancialData{})

	_, err := EvaluateSimple(company, "mystery_metric > 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrUnknownField)
}

func TestEvaluateSimple_Malformed(t *testing.T) {
	company := testCompany(contracts.FinancialData{})

	for _, condition := range []string{
		"",
		"roe >",
		"roe ~ 5",
		"roe > abc",
		"> 5",
	} {
		t.Run(condition, func(t *testing.T) {
			_, err := EvaluateSimple(company, condition)
			assert.Error(t, err)
		})
	}
}

func TestValidateSimple(t *testing.T) {
	assert.NoError(t, ValidateSimple("roe > 0.2 and debt < 0.5"))
	assert.ErrorIs(t, ValidateSimple("roe > 0.2 and debt < 0.5 or pe < 3"), contracts.ErrInvalidFormula)
}

func TestResolveField(t *testing.T) {
	metric, err := ResolveField("Debt_To_Equity")
	require.NoError(t, err)
	assert.Equal(t, contracts.MetricDebt, metric)

	_, err = ResolveField("bogus")
	assert.ErrorIs(t, err, contracts.ErrUnknownField)
}
