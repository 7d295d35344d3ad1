package pgp

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Operator is a catalog entry. Binary operators pop the top of the stack first
// and the value beneath it second; non-commutative operators compute
// second <op> first, so [a b -] yields a-b.
type Operator struct {
	Name   string
	Symbol string
	Arity  int

	fn func(s *evalStack) float64
}

func (op *Operator) String() string {
	return op.Symbol
}

var (
	Addition = &Operator{Name: "Addition", Symbol: "+", Arity: 2, fn: func(s *evalStack) float64 {
		first, second := s.pop(), s.pop()
		return second + first
	}}
	Subtraction = &Operator{Name: "Subtraction", Symbol: "-", Arity: 2, fn: func(s *evalStack) float64 {
		first, second := s.pop(), s.pop()
		return second - first
	}}
	Multiplication = &Operator{Name: "Multiplication", Symbol: "*", Arity: 2, fn: func(s *evalStack) float64 {
		first, second := s.pop(), s.pop()
		return second * first
	}}
	// Division may produce ±Inf or NaN; the evaluator rejects those results
	Division = &Operator{Name: "Division", Symbol: "/", Arity: 2, fn: func(s *evalStack) float64 {
		first, second := s.pop(), s.pop()
		return second / first
	}}
	Sine = &Operator{Name: "Sine", Symbol: "sin", Arity: 1, fn: func(s *evalStack) float64 {
		return math.Sin(s.pop())
	}}
	Cosine = &Operator{Name: "Cosine", Symbol: "cos", Arity: 1, fn: func(s *evalStack) float64 {
		return math.Cos(s.pop())
	}}
	Tangent = &Operator{Name: "Tangent", Symbol: "tan", Arity: 1, fn: func(s *evalStack) float64 {
		return math.Tan(s.pop())
	}}
	HyperbolicTangent = &Operator{Name: "HyperbolicTangent", Symbol: "tanh", Arity: 1, fn: func(s *evalStack) float64 {
		return math.Tanh(s.pop())
	}}
	Logarithm = &Operator{Name: "Logarithm", Symbol: "log", Arity: 1, fn: func(s *evalStack) float64 {
		return math.Log(s.pop())
	}}
	Exponential = &Operator{Name: "Exponential", Symbol: "exp", Arity: 1, fn: func(s *evalStack) float64 {
		return math.Exp(s.pop())
	}}
)

// BuiltinOperators lists every operator known to the engine, in catalog order
var BuiltinOperators = []*Operator{
	Addition,
	Subtraction,
	Multiplication,
	Division,
	Sine,
	Cosine,
	Tangent,
	HyperbolicTangent,
	Logarithm,
	Exponential,
}

// DefaultOperators excludes Logarithm and Exponential, which overflow or
// leave the real domain too easily
var DefaultOperators = []string{"+", "-", "*", "/", "sin", "cos", "tan", "tanh"}

var operatorsByKey map[string]*Operator

func init() {
	operatorsByKey = make(map[string]*Operator, 2*len(BuiltinOperators))
	for _, op := range BuiltinOperators {
		operatorsByKey[op.Symbol] = op
		operatorsByKey[op.Name] = op
	}
}

// LookupOperator finds a builtin operator by symbol ("+") or name ("Addition")
func LookupOperator(key string) (*Operator, bool) {
	op, ok := operatorsByKey[key]
	return op, ok
}

// Catalog is the active set of operators a fit may use
type Catalog struct {
	ops     []*Operator
	byArity map[int][]*Operator

	meanArityRatio float64
}

// NewCatalog builds a catalog from operator symbols or names. At least one
// binary operator is required, otherwise programs could never be closed into
// a single root.
func NewCatalog(keys ...string) (*Catalog, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: operator catalog is empty", ErrInvalidParams)
	}

	c := &Catalog{byArity: make(map[int][]*Operator)}
	seen := make(map[*Operator]struct{}, len(keys))
	aritySum := 0

	for _, key := range keys {
		op, ok := LookupOperator(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidParams, key)
		}
		if _, dup := seen[op]; dup {
			continue
		}
		seen[op] = struct{}{}

		c.ops = append(c.ops, op)
		c.byArity[op.Arity] = append(c.byArity[op.Arity], op)
		aritySum += op.Arity
	}

	if len(c.byArity[2]) == 0 {
		return nil, fmt.Errorf("%w: operator catalog needs at least one binary operator", ErrInvalidParams)
	}

	c.meanArityRatio = float64(len(c.ops)) / float64(aritySum)
	return c, nil
}

func (c *Catalog) Operators() []*Operator {
	return c.ops
}

func (c *Catalog) Len() int {
	return len(c.ops)
}

// Arities returns the distinct arities present in the catalog, ascending
func (c *Catalog) Arities() []int {
	arities := make([]int, 0, len(c.byArity))
	for arity := range c.byArity {
		arities = append(arities, arity)
	}
	sort.Ints(arities)
	return arities
}

// MeanArityRatio is the operator count divided by the sum of arities. The
// breeder uses it as the probability of attempting an operator.
func (c *Catalog) MeanArityRatio() float64 {
	return c.meanArityRatio
}

func (c *Catalog) Random(rng *rand.Rand) *Operator {
	return c.ops[rng.Intn(len(c.ops))]
}

// RandomOfArity returns nil if the catalog has no operator of that arity
func (c *Catalog) RandomOfArity(rng *rand.Rand, arity int) *Operator {
	ops := c.byArity[arity]
	if len(ops) == 0 {
		return nil
	}
	return ops[rng.Intn(len(ops))]
}

// RandomDifferent picks an operator of the same arity as op, other than op.
// Returns nil when op is the only one of its arity.
func (c *Catalog) RandomDifferent(rng *rand.Rand, op *Operator) *Operator {
	candidates := c.byArity[op.Arity]

	n := len(candidates)
	for _, candidate := range candidates {
		if candidate == op {
			n--
			break
		}
	}
	if n == 0 {
		return nil
	}

	k := rng.Intn(n)
	for _, candidate := range candidates {
		if candidate == op {
			continue
		}
		if k == 0 {
			return candidate
		}
		k--
	}
	return nil
}
