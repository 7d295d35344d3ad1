package pgp

import (
	"math"
	"strings"
)

// Program is an expression in postfix order. Evaluating it left to right
// (push terminals, let operations pop Arity values and push one) leaves
// exactly one value on the stack.
type Program struct {
	Symbols []Symbol

	// Per-row results of the last full evaluation, one slot per training row
	Predicted []float64
	True      []float64

	// Pearson r of Predicted against True; NaN while undefined
	Fitness float64

	// Error statistics, filled by Program.Statistics
	NMSE float64
	MAE  float64
	MRE  float64
}

// NewProgram creates an empty program with result buffers sized for rows
func NewProgram(capacity, rows int) *Program {
	return &Program{
		Symbols:   make([]Symbol, 0, capacity),
		Predicted: make([]float64, rows),
		True:      make([]float64, rows),
		Fitness:   math.NaN(),
		NMSE:      math.NaN(),
		MAE:       math.NaN(),
		MRE:       math.NaN(),
	}
}

// ProgramOf wraps symbols in a program with buffers sized for rows. The
// symbols slice is copied.
func ProgramOf(rows int, symbols ...Symbol) *Program {
	p := NewProgram(len(symbols), rows)
	p.Symbols = append(p.Symbols, symbols...)
	return p
}

func (p *Program) Len() int {
	return len(p.Symbols)
}

// Defined reports whether the program carries a usable fitness
func (p *Program) Defined() bool {
	return !math.IsNaN(p.Fitness)
}

// Clone copies the structure and fitness with fresh, zeroed result buffers.
// Symbols are values, so constants are never shared with the original.
func (p *Program) Clone() *Program {
	copied := &Program{
		Symbols:   make([]Symbol, len(p.Symbols), cap(p.Symbols)),
		Predicted: make([]float64, len(p.Predicted)),
		True:      make([]float64, len(p.True)),
		Fitness:   p.Fitness,
		NMSE:      math.NaN(),
		MAE:       math.NaN(),
		MRE:       math.NaN(),
	}
	copy(copied.Symbols, p.Symbols)
	return copied
}

// CloneWithResults copies structure, fitness, statistics and result buffers
func (p *Program) CloneWithResults() *Program {
	copied := p.Clone()
	copy(copied.Predicted, p.Predicted)
	copy(copied.True, p.True)
	copied.NMSE = p.NMSE
	copied.MAE = p.MAE
	copied.MRE = p.MRE
	return copied
}

// Constants returns the positions and values of every Constant, in order
func (p *Program) Constants() (indices []int, values []float64) {
	for i, s := range p.Symbols {
		if c, ok := s.(Constant); ok {
			indices = append(indices, i)
			values = append(values, c.Value)
		}
	}
	return indices, values
}

func (p *Program) setConstant(idx int, value float64) {
	c := p.Symbols[idx].(Constant)
	c.Value = value
	p.Symbols[idx] = c
}

// Residual simulates the stack depth after a full scan. A well formed
// program returns 1; ok is false when an operation would underflow.
func (p *Program) Residual() (depth int, ok bool) {
	for _, s := range p.Symbols {
		arity := arityOf(s)
		if arity > depth {
			return depth, false
		}
		depth += 1 - arity
	}
	return depth, true
}

// String renders the postfix form, e.g. "x1 2.5 * sin"
func (p *Program) String() string {
	var buf strings.Builder
	for i, s := range p.Symbols {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(s.String())
	}
	return buf.String()
}

// Shape renders one token per symbol: v, c, or op<arity>
func (p *Program) Shape() string {
	var buf strings.Builder
	for i, s := range p.Symbols {
		if i > 0 {
			buf.WriteByte(' ')
		}
		switch s := s.(type) {
		case Variable:
			buf.WriteByte('v')
		case Constant:
			buf.WriteByte('c')
		case Operation:
			buf.WriteString("op")
			buf.WriteByte(byte('0' + s.Op.Arity))
		}
	}
	return buf.String()
}
