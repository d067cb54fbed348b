package contracts

import "time"

// NoSignalLiteral is the exact string an expression formula returns to say
// "this formula did not fire" even though it evaluated successfully.
const NoSignalLiteral = "No Signal"

// OutcomeKind discriminates the result of evaluating a formula against a
// company.
type OutcomeKind int

const (
	// OutcomeNotMatched means the formula did not fire; no signal is stored.
	OutcomeNotMatched OutcomeKind = iota
	// OutcomeMatched carries the emitted signal label.
	OutcomeMatched
	// OutcomeScore carries a numeric score without a label.
	OutcomeScore
)

// Outcome is the result of one formula evaluation, modeled as a sum type
// instead of an untyped return value.
type Outcome struct {
	Kind  OutcomeKind
	Label string   // set for OutcomeMatched
	Value *float64 // set for OutcomeScore
}

// Fired reports whether the outcome should produce a signal row.
func (o Outcome) Fired() bool {
	return o.Kind == OutcomeMatched || o.Kind == OutcomeScore
}

// Matched builds a label outcome.
func Matched(label string) Outcome {
	return Outcome{Kind: OutcomeMatched, Label: label}
}

// NotMatched builds a non-firing outcome.
func NotMatched() Outcome {
	return Outcome{Kind: OutcomeNotMatched}
}

// Score builds a numeric outcome.
func Score(v float64) Outcome {
	return Outcome{Kind: OutcomeScore, Value: &v}
}

// SignalMetadata records how a signal was produced.
type SignalMetadata struct {
	Condition    string   `json:"condition"`
	FormulaName  string   `json:"formula_name"`
	UsedQuarters []string `json:"used_quarters,omitempty"`
}

// Signal is the current, single, per-company verdict. It is replaced
// atomically on every successful evaluation pass, never updated in place.
type Signal struct {
	ID        int64          `json:"id"`
	CompanyID int64          `json:"company_id"`
	FormulaID int64          `json:"formula_id"`
	Signal    string         `json:"signal"`
	Value     *float64       `json:"value,omitempty"`
	Metadata  SignalMetadata `json:"metadata"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SignalResult is what the scope resolver hands to the reconciler for one
// company: which formula was applicable and what it produced.
type SignalResult struct {
	FormulaID    int64
	FormulaName  string
	Condition    string
	Outcome      Outcome
	UsedQuarters []string
}

// ToSignal materializes a signal row, or nil when the formula did not fire.
func (r *SignalResult) ToSignal(companyID int64, now time.Time) *Signal {
	if r == nil || !r.Outcome.Fired() {
		return nil
	}
	return &Signal{
		CompanyID: companyID,
		FormulaID: r.FormulaID,
		Signal:    r.Outcome.Label,
		Value:     r.Outcome.Value,
		Metadata: SignalMetadata{
			Condition:    r.Condition,
			FormulaName:  r.FormulaName,
			UsedQuarters: r.UsedQuarters,
		},
		UpdatedAt: now,
	}
}
