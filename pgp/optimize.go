package pgp

import (
	"math"
	"math/rand"
)

const (
	constantOptimizationRounds = 10
	initialConstantStep        = 0.1
	constantStepGrowth         = 1.5
)

// Applied to a step size after a rejected proposal: 1.5^(-1/4)
var constantStepDecay = math.Pow(constantStepGrowth, -0.25)

// optimizeConstants refines the literal values of o by coordinate-wise
// search with a per-constant adaptive step. Each round visits the constants
// in a fresh random order and proposes value*step; an improvement is kept and
// grows the step, anything else shrinks it. The structure of o is never
// altered, and the result never scores lower than o itself.
//
// Returns the better of the refined program and an unmodified copy of o,
// its fitness, and the number of full-data evaluations spent.
func (ctx *fitContext) optimizeConstants(rng *rand.Rand, s *evalStack, o *Program, data Data) (*Program, float64, int, error) {
	evaluations := 0

	p := o.Clone()
	pFit, err := evaluateSet(s, p, data)
	evaluations++
	if err != nil || !p.Defined() {
		return p, pFit, evaluations, err
	}

	indices, values := p.Constants()
	if len(indices) == 0 {
		return p, pFit, evaluations, nil
	}

	refined := p.Clone()
	refinedFit := pFit

	steps := make([]float64, len(indices))
	order := make([]int, len(indices))
	for i := range steps {
		steps[i] = initialConstantStep
		order[i] = i
	}

	for round := 0; round < constantOptimizationRounds; round++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for _, k := range order {
			proposal := values[k] * steps[k]
			refined.setConstant(indices[k], proposal)

			proposalFit, err := evaluateSet(s, refined, data)
			evaluations++
			if err != nil {
				return p, pFit, evaluations, err
			}

			if proposalFit > refinedFit {
				values[k] = proposal
				refinedFit = proposalFit
				steps[k] *= constantStepGrowth
			} else {
				refined.setConstant(indices[k], values[k])
				steps[k] *= constantStepDecay
			}
		}
	}

	// Buffers still hold the last proposal; evaluate the accepted values once more
	refinedFit, err = evaluateSet(s, refined, data)
	evaluations++
	if err != nil {
		return p, pFit, evaluations, err
	}

	if refinedFit > pFit {
		return refined, refinedFit, evaluations, nil
	}
	return p, pFit, evaluations, nil
}
