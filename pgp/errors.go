package pgp

import (
	"errors"
	"fmt"
)

var (
	// ErrNumeric marks a row whose evaluation produced NaN or ±Inf. It is an
	// ordinary outcome of random programs, never a defect.
	ErrNumeric = errors.New("numeric evaluation failure")

	// ErrInvalidParams is wrapped by every configuration error returned from New
	ErrInvalidParams = errors.New("invalid parameters")
)

// StructureError reports a program that breaks the arity-balance invariant:
// an operation found too few operands, or more than one value was left on
// the stack. It indicates a defect in a genetic operator.
type StructureError struct {
	Program  string
	Position int
	Residual int
}

func (e *StructureError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("corrupted program %q: stack underflow at symbol %d", e.Program, e.Position)
	}
	return fmt.Sprintf("corrupted program %q: %d values left on the stack, expected 1", e.Program, e.Residual)
}
