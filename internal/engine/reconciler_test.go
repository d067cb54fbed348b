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

// fakeSignals is an in-memory signal store with per-company atomic replace.
type fakeSignals struct {
	signals  map[int64]*contracts.Signal
	replaces int
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{signals: make(map[int64]*contracts.Signal)}
}

func (f *fakeSignals) Replace(_ context.Context, companyID int64, sig *contracts.Signal) error {
	f.replaces++
	delete(f.signals, companyID)
	if sig != nil {
		copied := *sig
		f.signals[companyID] = &copied
	}
	return nil
}

func (f *fakeSignals) GetByCompany(_ context.Context, companyID int64) (*contracts.Signal, error) {
	sig, ok := f.signals[companyID]
	if !ok {
		return nil, contracts.ErrSignalNotFound
	}
	return sig, nil
}

func newTestReconciler(signals *fakeSignals) *Reconciler {
	quarterly := newFakeQuarterly()
	log := logger.NewNop()
	resolver := NewResolver(quarterly, expr.New(quarterly, log), 12, log)
	return NewReconciler(resolver, signals, log)
}

func TestReconciler_WritesSignal(t *testing.T) {
	signals := newFakeSignals()
	rc := newTestReconciler(signals)

	company := acmeCompany()
	formulas := []*contracts.Formula{
		simpleFormula(10, contracts.ScopeGlobal, nil, "roe > 0.2", "BUY", 1),
	}

	generated := rc.Reconcile(context.Background(), []*contracts.Company{company}, formulas, nil)
	assert.Equal(t, 1, generated)

	sig, err := signals.GetByCompany(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, "BUY", sig.Signal)
	assert.Equal(t, int64(10), sig.FormulaID)
	assert.Equal(t, "roe > 0.2", sig.Metadata.Condition)
}

func TestReconciler_Idempotent(t *testing.T) {
	signals := newFakeSignals()
	rc := newTestReconciler(signals)

	company := acmeCompany()
	formulas := []*contracts.Formula{
		simpleFormula(10, contracts.ScopeGlobal, nil, "roe > 0.2", "BUY", 1),
	}

	rc.Reconcile(context.Background(), []*contracts.Company{company}, formulas, nil)
	first, err := signals.GetByCompany(context.Background(), company.ID)
	require.NoError(t, err)

	rc.Reconcile(context.Background(), []*contracts.Company{company}, formulas, nil)
	second, err := signals.GetByCompany(context.Background(), company.ID)
	require.NoError(t, err)

	assert.Len(t, signals.signals, 1, "exactly one signal row per company")
	assert.Equal(t, first.Signal, second.Signal)
	assert.Equal(t, first.FormulaID, second.FormulaID)
	assert.Equal(t, first.Metadata, second.Metadata)
}

func TestReconciler_NotMatchedDeletesExisting(t *testing.T) {
	signals := newFakeSignals()
	rc := newTestReconciler(signals)

	company := acmeCompany()
	signals.signals[company.ID] = &contracts.Signal{CompanyID: company.ID, Signal: "OLD"}

	formulas := []*contracts.Formula{
		simpleFormula(10, contracts.ScopeGlobal, nil, "roe > 0.9", "BUY", 1),
	}

	generated := rc.Reconcile(context.Background(), []*contracts.Company{company}, formulas, nil)
	assert.Equal(t, 0, generated)

	_, err := signals.GetByCompany(context.Background(), company.ID)
	assert.ErrorIs(t, err, contracts.ErrSignalNotFound)
}

func TestReconciler_FaultIsolation(t *testing.T) {
	signals := newFakeSignals()
	rc := newTestReconciler(signals)

	// Company A routes to a formula with mixed operators; its evaluation
	// fails and its old signal must survive.
	companyA := acmeCompany()
	companyA.ID = 1
	companyA.AssignedFormulaID = ptr(66)
	signals.signals[companyA.ID] = &contracts.Signal{CompanyID: companyA.ID, Signal: "LAST-GOOD"}

	companyB := acmeCompany()
	companyB.ID = 2

	broken := simpleFormula(66, contracts.ScopeCompany, ptr(1), "roe > 1 and pe < 5 or debt > 1", "X", 0)
	global := simpleFormula(10, contracts.ScopeGlobal, nil, "roe > 0.2", "BUY", 1)

	generated := rc.Reconcile(context.Background(),
		[]*contracts.Company{companyA, companyB},
		[]*contracts.Formula{broken, global}, nil)

	assert.Equal(t, 1, generated)

	sigA, err := signals.GetByCompany(context.Background(), companyA.ID)
	require.NoError(t, err)
	assert.Equal(t, "LAST-GOOD", sigA.Signal, "failed evaluation preserves last-known-good signal")

	sigB, err := signals.GetByCompany(context.Background(), companyB.ID)
	require.NoError(t, err)
	assert.Equal(t, "BUY", sigB.Signal)
}

func TestReconciler_ScoreOutcomeStoresValue(t *testing.T) {
	signals := newFakeSignals()
	rc := newTestReconciler(signals)

	company := acmeCompany()
	f := &contracts.Formula{
		ID:        43,
		Scope:     contracts.ScopeGlobal,
		Condition: "(Revenue[Q1] - Revenue[Q2]) / Revenue[Q2]",
		Enabled:   true,
		Type:      "excel",
		Kind:      contracts.KindExpression,
	}

	generated := rc.Reconcile(context.Background(), []*contracts.Company{company}, []*contracts.Formula{f}, nil)
	assert.Equal(t, 1, generated)

	sig, err := signals.GetByCompany(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Empty(t, sig.Signal, "numeric results carry no label")
	require.NotNil(t, sig.Value)
	assert.InDelta(t, 10.0/120.0, *sig.Value, 1e-9)
	assert.Equal(t, []string{"2026Q2", "2026Q1"}, sig.Metadata.UsedQuarters)
}

func TestReconciler_NoFormulaLeavesNoSignal(t *testing.T) {
	signals := newFakeSignals()
	rc := newTestReconciler(signals)

	company := acmeCompany()
	signals.signals[company.ID] = &contracts.Signal{CompanyID: company.ID, Signal: "OLD"}

	generated := rc.Reconcile(context.Background(), []*contracts.Company{company}, nil, nil)
	assert.Equal(t, 0, generated)

	_, err := signals.GetByCompany(context.Background(), company.ID)
	assert.ErrorIs(t, err, contracts.ErrSignalNotFound)
}
