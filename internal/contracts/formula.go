package contracts

import (
	"regexp"
	"strings"
)

// FormulaScope is the precedence tier a formula applies at.
type FormulaScope string

const (
	ScopeGlobal  FormulaScope = "global"
	ScopeSector  FormulaScope = "sector"
	ScopeCompany FormulaScope = "company"
)

// FormulaKind is the evaluator a formula routes to. It is decided once,
// when the formula is authored or loaded, never re-sniffed from the
// condition text at evaluation time.
type FormulaKind string

const (
	KindSimple     FormulaKind = "simple"
	KindExpression FormulaKind = "expression"
)

// Formula is a stored classification rule. Read-only to the engine.
type Formula struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Scope      FormulaScope `json:"scope"`
	ScopeValue *int64       `json:"scope_value,omitempty"` // sector or company id, nil for global
	Condition  string       `json:"condition"`
	Signal     string       `json:"signal"` // label emitted on a boolean match
	Priority   int          `json:"priority"` // ascending precedence among global formulas
	Enabled    bool         `json:"enabled"`
	Type       string       `json:"formula_type"` // "simple" or "excel", as authored
	Kind       FormulaKind  `json:"kind"`
}

var (
	quarterRefPattern = regexp.MustCompile(`\[[QP]\d+\]|[A-Za-z_]\w*\(-?\d+\)`)
	functionPattern   = regexp.MustCompile(`(?i)\b(IF|AND|OR|NOT|SUM|AVERAGE|MAX|MIN|COUNT|ROUND|ABS|SQRT|POWER|LOG|IFERROR|COALESCE|SUMIF|COUNTIF|LET|CHOOSE|MAP|INDEX|CONCAT)\s*\(`)
)

// DetectKind classifies a formula's condition text. Explicitly excel-typed
// formulas, quarter references and function calls route to the expression
// evaluator; everything else is a simple condition chain.
func DetectKind(formulaType, condition string) FormulaKind {
	if strings.EqualFold(formulaType, "excel") {
		return KindExpression
	}
	if quarterRefPattern.MatchString(condition) || functionPattern.MatchString(condition) {
		return KindExpression
	}
	return KindSimple
}

// AppliesTo reports whether the formula's scope covers the given company.
func (f *Formula) AppliesTo(c *Company) bool {
	switch f.Scope {
	case ScopeGlobal:
		return true
	case ScopeCompany:
		return f.ScopeValue != nil && *f.ScopeValue == c.ID
	case ScopeSector:
		return f.ScopeValue != nil && c.SectorID != nil && *f.ScopeValue == *c.SectorID
	}
	return false
}
