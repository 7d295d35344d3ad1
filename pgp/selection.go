package pgp

import (
	"fmt"
	"math/rand"
	"sort"
)

// Selection decides how parents are drawn from the current population
type Selection string

const (
	// SelectUniform draws every parent index with equal probability,
	// regardless of fitness
	SelectUniform Selection = "uniform"

	// SelectProportional draws parents with probability proportional to their
	// fitness. Negative correlations weigh nothing.
	SelectProportional Selection = "proportional"
)

func (s Selection) validate() error {
	switch s {
	case SelectUniform, SelectProportional:
		return nil
	default:
		return fmt.Errorf("%w: unknown selection %q", ErrInvalidParams, s)
	}
}

// selector draws parent indices for one generation. It is built from the
// population before the generation starts and only read afterwards, so
// partitions share it.
type selector struct {
	n          int
	cumulative []float64
}

func newSelector(mode Selection, population []*Program) *selector {
	s := &selector{n: len(population)}
	if mode != SelectProportional {
		return s
	}

	cumulative := make([]float64, len(population))
	total := 0.0
	for i, p := range population {
		if p != nil && p.Fitness > 0 {
			total += p.Fitness
		}
		cumulative[i] = total
	}

	// Without positive fitness there is nothing to be proportional to
	if total > 0 {
		s.cumulative = cumulative
	}
	return s
}

func (s *selector) pick(rng *rand.Rand) int {
	if s.cumulative == nil {
		return rng.Intn(s.n)
	}

	total := s.cumulative[len(s.cumulative)-1]
	pick := rng.Float64() * total
	i := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > pick
	})
	if i >= s.n {
		i = s.n - 1
	}
	return i
}
