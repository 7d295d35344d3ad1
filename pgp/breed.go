package pgp

import (
	"math/rand"
	"strconv"
)

// Probability that a terminal is a variable rather than a constant
const variableTerminalRate = 0.75

func (ctx *fitContext) randomVariable(rng *rand.Rand) Variable {
	return ctx.inputs[rng.Intn(len(ctx.inputs))]
}

// randomTerminal returns a variable reference or, less often, a constant
// sampled within the bounds of a random variable. constants numbers the
// constants of the program being built.
func (ctx *fitContext) randomTerminal(rng *rand.Rand, constants *int) Symbol {
	if rng.Float64() < variableTerminalRate {
		return ctx.randomVariable(rng)
	}

	b := ctx.bounds[rng.Intn(len(ctx.bounds))]
	*constants++
	return Constant{
		Name:  "c" + strconv.Itoa(*constants),
		Value: b.Min + rng.Float64()*(b.Max-b.Min),
	}
}

// breed creates a random program of at least length symbols with result
// buffers for rows. Operators are only accepted while enough terminals are
// available to feed them, and once length is reached operators keep being
// appended until a single root remains.
func (ctx *fitContext) breed(rng *rand.Rand, length, rows int) *Program {
	p := NewProgram(length+length/2, rows)
	constants := 0
	ratio := ctx.catalog.MeanArityRatio()

	p.Symbols = append(p.Symbols, ctx.randomTerminal(rng, &constants))
	surplus := 1

	for len(p.Symbols) < length {
		if rng.Float64() > ratio {
			p.Symbols = append(p.Symbols, ctx.randomTerminal(rng, &constants))
			surplus++
			continue
		}

		op := ctx.catalog.Random(rng)
		if surplus >= op.Arity {
			surplus -= op.Arity - 1
			p.Symbols = append(p.Symbols, Operation{Op: op})
		}
	}

	for surplus > 1 {
		op := ctx.catalog.Random(rng)
		if surplus >= op.Arity {
			surplus -= op.Arity - 1
			p.Symbols = append(p.Symbols, Operation{Op: op})
		}
	}

	return p
}
