package engine

import (
	"context"
	"fmt"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/internal/formula"
	"github.com/quantrail/signals/pkg/logger"
)

// Resolver picks the one applicable formula for a company through the
// three-tier override hierarchy and dispatches it to the matching evaluator.
type Resolver struct {
	quarterly  contracts.QuarterlyRepository
	evaluator  contracts.ExpressionEvaluator
	windowSize int
	log        *logger.Logger
}

// NewResolver creates a Resolver. windowSize is the number of most recent
// quarters exposed to expression formulas.
func NewResolver(quarterly contracts.QuarterlyRepository, evaluator contracts.ExpressionEvaluator, windowSize int, log *logger.Logger) *Resolver {
	return &Resolver{
		quarterly:  quarterly,
		evaluator:  evaluator,
		windowSize: windowSize,
		log:        log,
	}
}

// Resolve evaluates the applicable formula for the company. A nil result
// with a nil error means no formula applies. Evaluation failures are
// returned to the caller; they never abort a larger batch.
func (r *Resolver) Resolve(ctx context.Context, company *contracts.Company, formulas []*contracts.Formula, sectors map[int64]*contracts.Sector) (*contracts.SignalResult, error) {
	selected := selectFormula(company, formulas, sectors)
	if selected == nil {
		return nil, nil
	}

	result := &contracts.SignalResult{
		FormulaID:   selected.ID,
		FormulaName: selected.Name,
		Condition:   selected.Condition,
	}

	kind := selected.Kind
	if kind == "" {
		kind = contracts.DetectKind(selected.Type, selected.Condition)
	}

	switch kind {
	case contracts.KindExpression:
		outcome, used, err := r.evalExpression(ctx, company, selected)
		if err != nil {
			return nil, err
		}
		result.Outcome = outcome
		result.UsedQuarters = used

	default:
		matched, err := formula.EvaluateSimple(company, selected.Condition)
		if err != nil {
			return nil, fmt.Errorf("formula %d: %w", selected.ID, err)
		}
		if matched {
			result.Outcome = contracts.Matched(selected.Signal)
		} else {
			result.Outcome = contracts.NotMatched()
		}
	}

	return result, nil
}

// selectFormula walks the override hierarchy: direct company assignment,
// then sector assignment, then the enabled global formula with the lowest
// priority number. Ties on priority break by formula id for determinism.
func selectFormula(company *contracts.Company, formulas []*contracts.Formula, sectors map[int64]*contracts.Sector) *contracts.Formula {
	byID := make(map[int64]*contracts.Formula, len(formulas))
	for _, f := range formulas {
		byID[f.ID] = f
	}

	if company.AssignedFormulaID != nil {
		if f, ok := byID[*company.AssignedFormulaID]; ok && f.Enabled {
			return f
		}
	}

	if company.SectorID != nil {
		if sector, ok := sectors[*company.SectorID]; ok && sector.AssignedFormulaID != nil {
			if f, ok := byID[*sector.AssignedFormulaID]; ok && f.Enabled {
				return f
			}
		}
	}

	var best *contracts.Formula
	for _, f := range formulas {
		if !f.Enabled || f.Scope != contracts.ScopeGlobal {
			continue
		}
		if best == nil || f.Priority < best.Priority ||
			(f.Priority == best.Priority && f.ID < best.ID) {
			best = f
		}
	}
	return best
}

// evalExpression runs an expression formula over the newest quarter window
// and maps the evaluator's return contract onto the outcome sum type.
func (r *Resolver) evalExpression(ctx context.Context, company *contracts.Company, f *contracts.Formula) (contracts.Outcome, []string, error) {
	window, err := r.quarterly.LatestQuarters(ctx, company.Ticker, r.windowSize)
	if err != nil {
		return contracts.NotMatched(), nil, fmt.Errorf("quarter window for %s: %w", company.Ticker, err)
	}

	res, err := r.evaluator.Evaluate(ctx, company.Ticker, f.Condition, window)
	if err != nil {
		return contracts.NotMatched(), nil, err
	}

	switch v := res.Value.(type) {
	case bool:
		if v {
			return contracts.Matched(f.Signal), res.UsedQuarters, nil
		}
		return contracts.NotMatched(), res.UsedQuarters, nil

	case string:
		if v == "" || v == contracts.NoSignalLiteral {
			return contracts.NotMatched(), res.UsedQuarters, nil
		}
		return contracts.Matched(v), res.UsedQuarters, nil

	case float64:
		return contracts.Score(v), res.UsedQuarters, nil
	}

	// Blank result: the formula did not fire.
	return contracts.NotMatched(), res.UsedQuarters, nil
}
