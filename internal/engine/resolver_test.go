package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/internal/expr"
	"github.com/quantrail/signals/pkg/logger"
)

// fakeQuarterly serves canned quarterly series per ticker.
type fakeQuarterly struct {
	quarters map[string][]string // ticker -> labels, newest first
	rows     map[string][]contracts.QuarterRow
}

func (f *fakeQuarterly) LatestQuarters(_ context.Context, ticker string, limit int) ([]string, error) {
	labels := f.quarters[ticker]
	if len(labels) > limit {
		labels = labels[:limit]
	}
	return labels, nil
}

func (f *fakeQuarterly) SeriesWindow(_ context.Context, ticker string, window []string) (*contracts.QuarterSeries, error) {
	return contracts.NewQuarterSeries(window, f.rows[ticker]), nil
}

func newFakeQuarterly() *fakeQuarterly {
	return &fakeQuarterly{
		quarters: map[string][]string{
			"ACME": {"2026Q2", "2026Q1", "2025Q4"},
		},
		rows: map[string][]contracts.QuarterRow{
			"ACME": {
				{Ticker: "ACME", Quarter: "2026Q2", Metric: "Revenue", Value: 130},
				{Ticker: "ACME", Quarter: "2026Q1", Metric: "Revenue", Value: 120},
				{Ticker: "ACME", Quarter: "2025Q4", Metric: "Revenue", Value: 110},
			},
		},
	}
}

func newTestResolver() *Resolver {
	quarterly := newFakeQuarterly()
	log := logger.NewNop()
	return NewResolver(quarterly, expr.New(quarterly, log), 12, log)
}

func ptr(v int64) *int64 { return &v }

func simpleFormula(id int64, scope contracts.FormulaScope, scopeValue *int64, condition, signal string, priority int) *contracts.Formula {
	return &contracts.Formula{
		ID:         id,
		Name:       "formula-" + signal,
		Scope:      scope,
		ScopeValue: scopeValue,
		Condition:  condition,
		Signal:     signal,
		Priority:   priority,
		Enabled:    true,
		Type:       "simple",
		Kind:       contracts.DetectKind("simple", condition),
	}
}

func acmeCompany() *contracts.Company {
	return &contracts.Company{
		ID:       1,
		Ticker:   "ACME",
		SectorID: ptr(7),
		FinancialData: contracts.FinancialData{
			contracts.MetricROE:  0.25,
			contracts.MetricDebt: 0.3,
		},
	}
}

func TestResolver_DirectAssignmentWins(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()
	company.AssignedFormulaID = ptr(100)

	formulas := []*contracts.Formula{
		simpleFormula(100, contracts.ScopeCompany, ptr(1), "roe > 0.2", "DIRECT", 0),
		simpleFormula(200, contracts.ScopeSector, ptr(7), "roe > 0.2", "SECTOR", 0),
		simpleFormula(300, contracts.ScopeGlobal, nil, "roe > 0.2", "GLOBAL", 1),
	}
	sectors := map[int64]*contracts.Sector{
		7: {ID: 7, AssignedFormulaID: ptr(200)},
	}

	result, err := resolver.Resolve(context.Background(), company, formulas, sectors)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(100), result.FormulaID)
	assert.Equal(t, "DIRECT", result.Outcome.Label)
}

func TestResolver_DisabledAssignmentFallsThrough(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()
	company.AssignedFormulaID = ptr(100)

	direct := simpleFormula(100, contracts.ScopeCompany, ptr(1), "roe > 0.2", "DIRECT", 0)
	direct.Enabled = false
	sector := simpleFormula(200, contracts.ScopeSector, ptr(7), "roe > 0.2", "SECTOR", 0)

	sectors := map[int64]*contracts.Sector{
		7: {ID: 7, AssignedFormulaID: ptr(200)},
	}

	result, err := resolver.Resolve(context.Background(), company, []*contracts.Formula{direct, sector}, sectors)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(200), result.FormulaID)
}

func TestResolver_GlobalPriority(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	formulas := []*contracts.Formula{
		simpleFormula(10, contracts.ScopeGlobal, nil, "roe > 0.2", "LOW", 10),
		simpleFormula(20, contracts.ScopeGlobal, nil, "roe > 0.2", "HIGH", 1),
	}

	result, err := resolver.Resolve(context.Background(), company, formulas, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(20), result.FormulaID, "lowest priority number wins")
	assert.Equal(t, "HIGH", result.Outcome.Label)
}

func TestResolver_GlobalPriorityTieBreaksByID(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	formulas := []*contracts.Formula{
		simpleFormula(31, contracts.ScopeGlobal, nil, "roe > 0.2", "B", 5),
		simpleFormula(30, contracts.ScopeGlobal, nil, "roe > 0.2", "A", 5),
	}

	result, err := resolver.Resolve(context.Background(), company, formulas, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(30), result.FormulaID)
}

func TestResolver_NoApplicableFormula(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	disabled := simpleFormula(10, contracts.ScopeGlobal, nil, "roe > 0.2", "X", 1)
	disabled.Enabled = false

	result, err := resolver.Resolve(context.Background(), company, []*contracts.Formula{disabled}, nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestResolver_SimpleNotMatched(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	formulas := []*contracts.Formula{
		simpleFormula(10, contracts.ScopeGlobal, nil, "roe > 0.9", "X", 1),
	}

	result, err := resolver.Resolve(context.Background(), company, formulas, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, contracts.OutcomeNotMatched, result.Outcome.Kind)
}

func TestResolver_ExpressionDispatch(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	f := &contracts.Formula{
		ID:        40,
		Name:      "growth",
		Scope:     contracts.ScopeGlobal,
		Condition: "Revenue[Q1] > Revenue[Q2]",
		Signal:    "BUY",
		Priority:  1,
		Enabled:   true,
		Type:      "excel",
		Kind:      contracts.KindExpression,
	}

	result, err := resolver.Resolve(context.Background(), company, []*contracts.Formula{f}, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, contracts.OutcomeMatched, result.Outcome.Kind)
	assert.Equal(t, "BUY", result.Outcome.Label)
	assert.Equal(t, []string{"2026Q2", "2026Q1"}, result.UsedQuarters)
}

func TestResolver_ExpressionStringLabelOverridesFormulaSignal(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	f := &contracts.Formula{
		ID:        41,
		Scope:     contracts.ScopeGlobal,
		Condition: `IF(Revenue[Q1] > 100, "STRONG BUY", "No Signal")`,
		Signal:    "BUY",
		Enabled:   true,
		Type:      "excel",
		Kind:      contracts.KindExpression,
	}

	result, err := resolver.Resolve(context.Background(), company, []*contracts.Formula{f}, nil)
	require.NoError(t, err)
	assert.Equal(t, "STRONG BUY", result.Outcome.Label)
}

func TestResolver_ExpressionNoSignalLiteral(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	f := &contracts.Formula{
		ID:        42,
		Scope:     contracts.ScopeGlobal,
		Condition: `IF(Revenue[Q1] > 1000, "BUY", "No Signal")`,
		Signal:    "BUY",
		Enabled:   true,
		Type:      "excel",
		Kind:      contracts.KindExpression,
	}

	result, err := resolver.Resolve(context.Background(), company, []*contracts.Formula{f}, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeNotMatched, result.Outcome.Kind)
}

func TestResolver_ExpressionNumericScore(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	f := &contracts.Formula{
		ID:        43,
		Scope:     contracts.ScopeGlobal,
		Condition: "(Revenue[Q1] - Revenue[Q2]) / Revenue[Q2]",
		Signal:    "BUY",
		Enabled:   true,
		Type:      "excel",
		Kind:      contracts.KindExpression,
	}

	result, err := resolver.Resolve(context.Background(), company, []*contracts.Formula{f}, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeScore, result.Outcome.Kind)
	require.NotNil(t, result.Outcome.Value)
	assert.InDelta(t, 10.0/120.0, *result.Outcome.Value, 1e-9)
	assert.Empty(t, result.Outcome.Label)
}

func TestResolver_EvaluationErrorSurfaces(t *testing.T) {
	resolver := newTestResolver()
	company := acmeCompany()

	formulas := []*contracts.Formula{
		simpleFormula(50, contracts.ScopeGlobal, nil, "roe > 1 and pe < 5 or debt > 1", "X", 1),
	}

	_, err := resolver.Resolve(context.Background(), company, formulas, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInvalidFormula)
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		formulaType string
		condition   string
		want        contracts.FormulaKind
	}{
		{"excel", "anything", contracts.KindExpression},
		{"simple", "roe > 0.2 and debt < 0.5", contracts.KindSimple},
		{"simple", "Revenue[Q1] > Revenue[Q2]", contracts.KindExpression},
		{"simple", "IF(Revenue[Q1] > 100, \"BUY\", \"No Signal\")", contracts.KindExpression},
		{"simple", "Revenue(-1) > 100", contracts.KindExpression},
		{"", "pe < 5", contracts.KindSimple},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			assert.Equal(t, tt.want, contracts.DetectKind(tt.formulaType, tt.condition))
		})
	}
}
