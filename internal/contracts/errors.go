package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormula marks malformed simple-condition text, including
	// mixed AND/OR chains.
	ErrInvalidFormula = errors.New("invalid formula")

	// ErrUnknownField marks a simple condition referencing a field that
	// resolves to no canonical metric.
	ErrUnknownField = errors.New("unknown field")

	// ErrCompanyNotFound marks an explicit id list referencing missing
	// companies. It fails the whole batch request up front.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrSignalNotFound marks a read for a company with no current signal.
	ErrSignalNotFound = errors.New("signal not found")

	// ErrJobNotFound marks a lookup for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
)

// ExpressionError surfaces a failure from the expression evaluator. Opaque
// to the engine; it only matters that the evaluation did not complete.
type ExpressionError struct {
	Expression string
	Err        error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression evaluation failed: %v", e.Err)
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}
