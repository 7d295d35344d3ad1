package pgp

import (
	"errors"
	"fmt"
	"math"
)

// Data is the engine's read-only view of a training set: a column-major
// matrix where the value of column c in row r is Values[c*Rows+r].
type Data struct {
	Values []float64
	Rows   int
	Target int
}

func (d Data) At(col, row int) float64 {
	return d.Values[col*d.Rows+row]
}

func (d Data) validate(maxIndex int) error {
	if d.Rows <= 0 {
		return fmt.Errorf("%w: data has no rows", ErrInvalidParams)
	}
	if len(d.Values)%d.Rows != 0 {
		return fmt.Errorf("%w: data length %d is not a multiple of %d rows", ErrInvalidParams, len(d.Values), d.Rows)
	}
	columns := len(d.Values) / d.Rows
	if d.Target < 0 || d.Target >= columns {
		return fmt.Errorf("%w: target column %d outside of %d columns", ErrInvalidParams, d.Target, columns)
	}
	if maxIndex >= columns {
		return fmt.Errorf("%w: variable column %d outside of %d columns", ErrInvalidParams, maxIndex, columns)
	}
	return nil
}

func isFailure(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Evaluate computes the program's prediction for one row. A NaN or infinite
// intermediate result aborts the scan with ErrNumeric; a malformed program
// yields a *StructureError.
func Evaluate(stack *Stack, p *Program, data Data, row int) (float64, error) {
	return evaluate(stack.s, p, data, row)
}

func evaluate(s *evalStack, p *Program, data Data, row int) (float64, error) {
	s.reset()

	for i, symbol := range p.Symbols {
		switch symbol := symbol.(type) {
		case Constant:
			s.push(symbol.Value)
		case Variable:
			s.push(data.Values[symbol.Index*data.Rows+row] * symbol.Coefficient)
		case Operation:
			if s.size() < symbol.Op.Arity {
				s.reset()
				return 0, &StructureError{Program: p.String(), Position: i}
			}

			result := symbol.Op.fn(s)
			if isFailure(result) {
				s.reset()
				return 0, ErrNumeric
			}
			s.push(result)
		}
	}

	if s.size() != 1 {
		residual := s.size()
		s.reset()
		return 0, &StructureError{Program: p.String(), Position: -1, Residual: residual}
	}

	result := s.pop()
	if isFailure(result) {
		// A lone terminal can still be non-finite when the data is
		return 0, ErrNumeric
	}
	return result, nil
}

// EvaluateSet evaluates every row, storing predictions and true values in
// the program's buffers, and sets the program's fitness to the Pearson r of
// the two. Any failing row leaves the fitness undefined (NaN). The returned
// error is non-nil only for structural defects.
func EvaluateSet(stack *Stack, p *Program, data Data) (float64, error) {
	return evaluateSet(stack.s, p, data)
}

func evaluateSet(s *evalStack, p *Program, data Data) (float64, error) {
	if len(p.Predicted) != data.Rows {
		p.Predicted = make([]float64, data.Rows)
		p.True = make([]float64, data.Rows)
	}

	for row := 0; row < data.Rows; row++ {
		result, err := evaluate(s, p, data, row)
		if errors.Is(err, ErrNumeric) {
			p.Fitness = math.NaN()
			return p.Fitness, nil
		} else if err != nil {
			p.Fitness = math.NaN()
			return p.Fitness, err
		}

		p.Predicted[row] = result
		p.True[row] = data.Values[data.Target*data.Rows+row]
	}

	p.Fitness = PearsonR(p.True, p.Predicted)
	return p.Fitness, nil
}
