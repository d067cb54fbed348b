package formula

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/quantrail/signals/internal/contracts"
)

// epsilon absorbs floating-point noise in equality comparisons.
const epsilon = 0.0001

// clausePattern matches "field op signed-decimal". Field names may contain
// underscores and internal spaces; the operator list is closed.
var clausePattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_ ]*?)\s*(>=|<=|!=|>|<|=)\s*([+-]?\d+(?:\.\d+)?)$`)

// combinator is how clause results fold together.
type combinator int

const (
	combineAny combinator = iota // OR, also the single-clause default
	combineAll                   // AND
)

// clause is one parsed comparison.
type clause struct {
	metric contracts.Metric
	op     string
	value  float64
}

// EvaluateSimple parses and evaluates a simple condition chain against a
// company's flat financial record. Clauses are joined by a single boolean
// operator; mixing AND and OR in one chain is rejected. A clause whose field
// value is missing evaluates to false instead of failing, so companies with
// partial data degrade gracefully.
func EvaluateSimple(company *contracts.Company, condition string) (bool, error) {
	clauses, combine, err := parseCondition(condition)
	if err != nil {
		return false, err
	}

	matched := 0
	for _, cl := range clauses {
		if evalClause(company, cl) {
			matched++
		}
	}

	if combine == combineAll {
		return matched == len(clauses), nil
	}
	return matched > 0, nil
}

// ValidateSimple checks condition text without evaluating it. Used at
// formula-authoring time.
func ValidateSimple(condition string) error {
	_, _, err := parseCondition(condition)
	return err
}

// parseCondition splits a condition chain into clauses and the combinator.
func parseCondition(condition string) ([]clause, combinator, error) {
	text := strings.TrimSpace(condition)
	if text == "" {
		return nil, combineAny, fmt.Errorf("%w: empty condition", contracts.ErrInvalidFormula)
	}

	lower := strings.ToLower(text)
	hasAnd := strings.Contains(lower, " and ")
	hasOr := strings.Contains(lower, " or ")

	if hasAnd && hasOr {
		return nil, combineAny, fmt.Errorf("%w: mixed AND/OR operators in %q", contracts.ErrInvalidFormula, condition)
	}

	combine := combineAny
	var parts []string
	switch {
	case hasAnd:
		combine = combineAll
		parts = splitInsensitive(text, " and ")
	case hasOr:
		parts = splitInsensitive(text, " or ")
	default:
		parts = []string{text}
	}

	clauses := make([]clause, 0, len(parts))
	for _, part := range parts {
		cl, err := parseClause(part)
		if err != nil {
			return nil, combineAny, err
		}
		clauses = append(clauses, cl)
	}

	return clauses, combine, nil
}

// splitInsensitive splits text on a separator, matching case-insensitively.
func splitInsensitive(text, sep string) []string {
	lower := strings.ToLower(text)
	var parts []string
	for {
		idx := strings.Index(lower, sep)
		if idx < 0 {
			parts = append(parts, text)
			return parts
		}
		parts = append(parts, text[:idx])
		text = text[idx+len(sep):]
		lower = lower[idx+len(sep):]
	}
}

// parseClause parses a single "field op value" token.
func parseClause(token string) (clause, error) {
	token = strings.TrimSpace(token)

	m := clausePattern.FindStringSubmatch(token)
	if m == nil {
		return clause{}, fmt.Errorf("%w: cannot parse clause %q", contracts.ErrInvalidFormula, token)
	}

	metric, err := ResolveField(m[1])
	if err != nil {
		return clause{}, err
	}

	value, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return clause{}, fmt.Errorf("%w: bad numeric literal in %q", contracts.ErrInvalidFormula, token)
	}

	return clause{metric: metric, op: m[2], value: value}, nil
}

// evalClause applies one comparison. Missing values make the clause false.
func evalClause(company *contracts.Company, cl clause) bool {
	actual, ok := company.MetricValue(cl.metric)
	if !ok || math.IsNaN(actual) {
		return false
	}

	switch cl.op {
	case ">":
		return actual > cl.value
	case "<":
		return actual < cl.value
	case ">=":
		return actual >= cl.value
	case "<=":
		return actual <= cl.value
	case "=":
		return math.Abs(actual-cl.value) < epsilon
	case "!=":
		return math.Abs(actual-cl.value) >= epsilon
	}
	return false
}
