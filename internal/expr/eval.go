// Package expr implements the excel-style formula evaluator used for
// expression-kind formulas. Formulas run against a single ticker's quarterly
// series restricted to an ordered window of quarter labels, newest first.
//
// Quarter indexing counts from the newest quarter in the window for both
// reference forms: Metric[Q1] is the newest quarter and Metric[Qn] steps
// back in time, while Metric(0) is the newest quarter and Metric(-1) is one
// quarter back. Metric[Qn] is therefore equivalent to Metric(-(n-1)).
package expr

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/pkg/logger"
)

// comparison epsilon for numeric equality, matching the simple evaluator.
const epsilon = 0.0001

// Evaluator executes excel-style formulas backed by the quarterly series
// repository. It implements contracts.ExpressionEvaluator.
type Evaluator struct {
	quarterly contracts.QuarterlyRepository
	log       *logger.Logger
}

// New creates an Evaluator.
func New(quarterly contracts.QuarterlyRepository, log *logger.Logger) *Evaluator {
	return &Evaluator{quarterly: quarterly, log: log}
}

// Evaluate runs expression text against the ticker's series, restricted to
// the supplied quarter window (newest first).
func (e *Evaluator) Evaluate(ctx context.Context, ticker, expression string, window []string) (*contracts.ExpressionResult, error) {
	series, err := e.quarterly.SeriesWindow(ctx, ticker, window)
	if err != nil {
		return nil, fmt.Errorf("load series for %s: %w", ticker, err)
	}
	return EvaluateSeries(series, expression)
}

// EvaluateSeries runs expression text against an already-loaded series.
func EvaluateSeries(series *contracts.QuarterSeries, expression string) (*contracts.ExpressionResult, error) {
	ast, err := parse(expression)
	if err != nil {
		return nil, &contracts.ExpressionError{Expression: expression, Err: err}
	}

	env := newEnv(series)
	value, err := evalNode(ast, env)
	if err != nil {
		return nil, &contracts.ExpressionError{Expression: expression, Err: err}
	}

	result := &contracts.ExpressionResult{UsedQuarters: env.usedQuarters()}

	switch v := value.(type) {
	case bool:
		result.Value = v
		result.Type = contracts.ResultBoolean
	case float64:
		if math.IsNaN(v) {
			result.Type = contracts.ResultBlank
		} else {
			result.Value = v
			result.Type = contracts.ResultNumber
		}
	case string:
		result.Value = v
		result.Type = contracts.ResultString
	case nil:
		result.Type = contracts.ResultBlank
	default:
		return nil, &contracts.ExpressionError{
			Expression: expression,
			Err:        fmt.Errorf("formula produced a non-scalar result"),
		}
	}

	return result, nil
}

// env carries evaluation state: the series, LET/MAP bindings and the set of
// window quarters the formula has consulted.
type env struct {
	series   *contracts.QuarterSeries
	bindings map[string]interface{}
	used     map[int]bool
}

func newEnv(series *contracts.QuarterSeries) *env {
	return &env{
		series:   series,
		bindings: make(map[string]interface{}),
		used:     make(map[int]bool),
	}
}

// child creates a scope with one extra binding.
func (e *env) child(name string, value interface{}) *env {
	bindings := make(map[string]interface{}, len(e.bindings)+1)
	for k, v := range e.bindings {
		bindings[k] = v
	}
	bindings[strings.ToLower(name)] = value
	return &env{series: e.series, bindings: bindings, used: e.used}
}

// quarterValue reads a metric at a window index (0 = newest) and records
// the consulted quarter. Out-of-window and missing values are blank.
func (e *env) quarterValue(metric string, idx int) interface{} {
	if idx < 0 || idx >= len(e.series.Quarters) {
		return nil
	}
	e.used[idx] = true
	v, ok := e.series.Lookup(metric, idx)
	if !ok {
		return nil
	}
	return v
}

// usedQuarters reports consulted labels in window order (newest first).
func (e *env) usedQuarters() []string {
	var labels []string
	for i, q := range e.series.Quarters {
		if e.used[i] {
			labels = append(labels, q)
		}
	}
	return labels
}

func evalNode(n node, env *env) (interface{}, error) {
	switch nd := n.(type) {
	case numberNode:
		return nd.value, nil

	case stringNode:
		return nd.value, nil

	case identNode:
		if v, ok := env.bindings[strings.ToLower(nd.name)]; ok {
			return v, nil
		}
		// A bare metric name reads the newest quarter.
		return env.quarterValue(nd.name, 0), nil

	case quarterRefNode:
		return env.quarterValue(nd.metric, nd.index-1), nil

	case offsetRefNode:
		return env.quarterValue(nd.metric, -nd.offset), nil

	case percentNode:
		v, err := evalNode(nd.operand, env)
		if err != nil {
			return nil, err
		}
		return toNumber(v) / 100, nil

	case unaryNode:
		v, err := evalNode(nd.operand, env)
		if err != nil {
			return nil, err
		}
		return -toNumber(v), nil

	case arrayNode:
		elems := make([]interface{}, 0, len(nd.elems))
		for _, el := range nd.elems {
			v, err := evalNode(el, env)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return elems, nil

	case binaryNode:
		return evalBinary(nd, env)

	case callNode:
		return evalCall(nd, env)
	}

	return nil, fmt.Errorf("unsupported expression node %T", n)
}

func evalBinary(n binaryNode, env *env) (interface{}, error) {
	left, err := evalNode(n.left, env)
	if err != nil {
		return nil, err
	}
	right, err := evalNode(n.right, env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokenPlus:
		return toNumber(left) + toNumber(right), nil
	case tokenMinus:
		return toNumber(left) - toNumber(right), nil
	case tokenStar:
		return toNumber(left) * toNumber(right), nil
	case tokenSlash:
		r := toNumber(right)
		if r == 0 {
			return math.NaN(), nil
		}
		return toNumber(left) / r, nil
	case tokenCaret:
		return math.Pow(toNumber(left), toNumber(right)), nil
	case tokenAmp:
		return toText(left) + toText(right), nil
	case tokenEq:
		return valuesEqual(left, right), nil
	case tokenNeq:
		return !valuesEqual(left, right), nil
	case tokenLt, tokenGt, tokenLe, tokenGe:
		l, r := toNumber(left), toNumber(right)
		if math.IsNaN(l) || math.IsNaN(r) {
			return false, nil
		}
		switch n.op {
		case tokenLt:
			return l < r, nil
		case tokenGt:
			return l > r, nil
		case tokenLe:
			return l <= r, nil
		default:
			return l >= r, nil
		}
	}

	return nil, fmt.Errorf("unsupported operator")
}

// valuesEqual compares two values: numerically with epsilon when both sides
// coerce to numbers, case-insensitively for strings.
func valuesEqual(a, b interface{}) bool {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.EqualFold(as, bs)
	}

	an, bn := toNumber(a), toNumber(b)
	if math.IsNaN(an) || math.IsNaN(bn) {
		return false
	}
	return math.Abs(an-bn) < epsilon
}

// toNumber coerces a value to float64. Blank, non-numeric text and arrays
// become NaN, which propagates through arithmetic and is caught by the
// error-handling functions.
func toNumber(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case bool:
		if val {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return n
	case nil:
		return math.NaN()
	}
	return math.NaN()
}

// toText renders a value for concatenation.
func toText(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if math.IsNaN(val) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// truthy converts a value to a boolean condition.
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return !math.IsNaN(val) && val != 0
	case string:
		return val != "" && !strings.EqualFold(val, "false")
	case nil:
		return false
	}
	return false
}

// isBlankValue reports whether a value is null-like: blank or NaN.
func isBlankValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok {
		return math.IsNaN(f)
	}
	return false
}
