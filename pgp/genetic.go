package pgp

import (
	"math"
	"math/rand"
)

// SubtreeStart returns the index of the first symbol of the subtree rooted
// at the operation at idx, scanning backwards until the terminals seen
// satisfy the arity still owed. Returns -1 if idx is not an operation or the
// program is malformed.
func SubtreeStart(symbols []Symbol, idx int) int {
	root, ok := symbols[idx].(Operation)
	if !ok {
		return -1
	}

	targetArity := root.Op.Arity
	terminalCount := 0
	for i := idx - 1; i >= 0; i-- {
		if op, isOp := symbols[i].(Operation); isOp {
			targetArity += op.Op.Arity - 1
		} else {
			terminalCount++
		}

		if terminalCount == targetArity {
			return i
		}
	}
	return -1
}

// nextOperation finds the first operation at or after from, or -1
func nextOperation(symbols []Symbol, from int) int {
	for i := from; i < len(symbols); i++ {
		if isOperation(symbols[i]) {
			return i
		}
	}
	return -1
}

func spliced(rows int, dst []Symbol, lower, upper int, src []Symbol) *Program {
	p := NewProgram(len(dst)-(upper-lower+1)+len(src), rows)
	p.Symbols = append(p.Symbols, dst[:lower]...)
	p.Symbols = append(p.Symbols, src...)
	p.Symbols = append(p.Symbols, dst[upper+1:]...)
	return p
}

// Crossover swaps a random subtree of a with a random subtree of b. Each cut
// point is the first operation at or after a uniformly drawn index; when
// either parent has none, no offspring are produced and ok is false. The
// offspring carry undefined fitness.
func Crossover(rng *rand.Rand, a, b *Program) (aOffspring, bOffspring *Program, ok bool) {
	if a.Len() == 0 || b.Len() == 0 {
		return nil, nil, false
	}

	aUpper := nextOperation(a.Symbols, rng.Intn(a.Len()))
	if aUpper == -1 {
		return nil, nil, false
	}
	aLower := SubtreeStart(a.Symbols, aUpper)

	bUpper := nextOperation(b.Symbols, rng.Intn(b.Len()))
	if bUpper == -1 {
		return nil, nil, false
	}
	bLower := SubtreeStart(b.Symbols, bUpper)

	if aLower == -1 || bLower == -1 {
		return nil, nil, false
	}

	aSubtree := a.Symbols[aLower : aUpper+1]
	bSubtree := b.Symbols[bLower : bUpper+1]

	aOffspring = spliced(len(a.Predicted), a.Symbols, aLower, aUpper, bSubtree)
	bOffspring = spliced(len(b.Predicted), b.Symbols, bLower, bUpper, aSubtree)
	return aOffspring, bOffspring, true
}

// Largest relative change mutation applies to a constant
const constantMutationRatio = 0.1

// mutate returns a copy of p with one randomly chosen symbol changed:
//   - a constant moves by up to ±10% of its value
//   - a variable is replaced by a random input variable
//   - an operation is either removed (a unary one simply disappears, a binary
//     one takes its whole subtree with it, leaving a random variable) or
//     replaced by another operation of the same arity
func (ctx *fitContext) mutate(rng *rand.Rand, o *Program) *Program {
	p := o.Clone()
	p.Fitness = math.NaN()
	if p.Len() == 0 {
		return p
	}

	idx := rng.Intn(p.Len())
	switch s := p.Symbols[idx].(type) {
	case Constant:
		ratio := rng.Float64() * constantMutationRatio
		if rng.Float64() < 0.5 {
			s.Value += s.Value * ratio
		} else {
			s.Value -= s.Value * ratio
		}
		p.Symbols[idx] = s

	case Variable:
		p.Symbols[idx] = ctx.randomVariable(rng)

	case Operation:
		if rng.Float64() < 0.5 {
			if s.Op.Arity == 1 {
				p.Symbols = append(p.Symbols[:idx], p.Symbols[idx+1:]...)
			} else if limit := SubtreeStart(p.Symbols, idx); limit != -1 {
				p.Symbols[limit] = ctx.randomVariable(rng)
				p.Symbols = append(p.Symbols[:limit+1], p.Symbols[idx+1:]...)
			}
		} else if replacement := ctx.catalog.RandomDifferent(rng, s.Op); replacement != nil {
			p.Symbols[idx] = Operation{Op: replacement}
		}
	}

	return p
}
