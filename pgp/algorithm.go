package pgp

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrStalled is returned when initialization cannot find enough programs with
// a defined fitness, e.g. because the target column is constant
var ErrStalled = errors.New("no programs with defined fitness")

var numPrinter = message.NewPrinter(language.English)

// Algorithm evolves a population of Programs towards the target column.
// It is not safe for concurrent use; parallelism happens inside Step.
type Algorithm struct {
	ctx *fitContext
	rng *rand.Rand

	data       Data
	population []*Program
	next       []*Program
	partitions []*partition

	generation        int
	evaluationCount   int
	selectionPressure float64

	best        *Program
	bestFitness float64

	countLock sync.Mutex
}

// partition is a contiguous range of write indices together with the state
// its worker owns exclusively
type partition struct {
	start, end int
	rng        *rand.Rand
	stack      *evalStack

	// Fittest offspring of the current generation
	best *Program
}

// New validates params and prepares an Algorithm. Configuration errors wrap
// ErrInvalidParams.
func New(params *Params) (*Algorithm, error) {
	ctx, err := newFitContext(params)
	if err != nil {
		return nil, err
	}

	return &Algorithm{
		ctx:         ctx,
		rng:         rand.New(rand.NewSource(ctx.Seed)),
		bestFitness: math.NaN(),
	}, nil
}

func (a *Algorithm) Params() Params {
	return a.ctx.Params
}

func (a *Algorithm) Catalog() *Catalog {
	return a.ctx.catalog
}

// Best is the fittest Program found so far, with the result buffers of its
// evaluation. Nil before initialization.
func (a *Algorithm) Best() *Program {
	return a.best
}

func (a *Algorithm) BestFitness() float64 {
	return a.bestFitness
}

// EvaluationCount is the number of full-data evaluations spent, including the
// attempts that turned out undefined
func (a *Algorithm) EvaluationCount() int {
	return a.evaluationCount
}

func (a *Algorithm) Generation() int {
	return a.generation
}

// SelectionPressure of the last generation: evaluation attempts per slot
func (a *Algorithm) SelectionPressure() float64 {
	return a.selectionPressure
}

func (a *Algorithm) Population() []*Program {
	return a.population
}

// Breed creates a random program using the algorithm's catalog and variables
func (a *Algorithm) Breed(rng *rand.Rand, rows int) *Program {
	return a.ctx.breed(rng, a.ctx.TreeLength, rows)
}

// Mutate returns a mutated copy of p
func (a *Algorithm) Mutate(rng *rand.Rand, p *Program) *Program {
	return a.ctx.mutate(rng, p)
}

// OptimizeConstants refines the constants of p against data. The returned
// fitness is never lower than that of p.
func (a *Algorithm) OptimizeConstants(rng *rand.Rand, stack *Stack, p *Program, data Data) (*Program, float64, error) {
	optimized, fitness, _, err := a.ctx.optimizeConstants(rng, stack.s, p, data)
	return optimized, fitness, err
}

// Fit evolves the population against data until the generation budget is
// spent or the selection pressure ceiling is crossed. With initialize unset
// an existing population keeps evolving.
func (a *Algorithm) Fit(data Data, initialize bool) error {
	if initialize || a.population == nil {
		if err := a.Initialize(data); err != nil {
			return err
		}
	} else {
		if err := data.validate(a.ctx.maxIndex); err != nil {
			return err
		}
		a.data = data
	}

	a.ctx.Logger.Info("fit started",
		"generations", a.ctx.Generations,
		"population", a.ctx.PopulationSize,
		"rows", data.Rows,
		"parallel", a.ctx.UseParallelization,
	)
	startedAt := time.Now()

	for {
		done, err := a.Step()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	a.ctx.Logger.Info("fit finished",
		"generation", a.generation,
		"evaluations", a.evaluationCount,
		"fitness", a.bestFitness,
		"elapsed", time.Since(startedAt),
	)
	return nil
}

// Initialize fills the population with bred programs, skipping any whose
// fitness is undefined, and seeds the best program and slot 0 with the
// fittest of them
func (a *Algorithm) Initialize(data Data) error {
	if err := data.validate(a.ctx.maxIndex); err != nil {
		return err
	}

	a.data = data
	a.population = make([]*Program, a.ctx.PopulationSize)
	a.best = nil
	a.bestFitness = math.NaN()
	a.generation = 0
	a.selectionPressure = 0

	stack := newEvalStack(2 * a.ctx.TreeLength)
	limit := initializationLimit(a.ctx.PopulationSize, a.ctx.MaxSelectionPressure)

	attempts := 0
	for i := 0; i < len(a.population); {
		if attempts >= limit {
			a.evaluationCount = attempts
			return fmt.Errorf("%w: %d of %d slots filled after %d attempts", ErrStalled, i, len(a.population), attempts)
		}

		p := a.ctx.breed(a.rng, a.ctx.TreeLength, data.Rows)
		fitness, err := evaluateSet(stack, p, data)
		attempts++
		if err != nil {
			return err
		}
		if !p.Defined() {
			continue
		}

		if a.best == nil || fitness > a.bestFitness {
			a.best = p.CloneWithResults()
			a.bestFitness = fitness
		}
		a.population[i] = p
		i++
	}

	a.population[0] = a.best.Clone()
	a.evaluationCount = attempts

	a.next = make([]*Program, len(a.population))
	for i, p := range a.population {
		a.next[i] = p.Clone()
	}

	a.partitions = a.makePartitions()

	a.ctx.Logger.Debug("population initialized",
		"attempts", attempts,
		"fitness", a.bestFitness,
	)
	return nil
}

// initializationLimit bounds the breed attempts of Initialize. Every slot gets
// one attempt plus its share of retries, and the retries never drop below
// one per slot, so a ceiling under 1 cannot fail a population that breeds
// cleanly.
func initializationLimit(populationSize int, maxSelectionPressure float64) int {
	retries := math.Ceil(math.Max(maxSelectionPressure, 1) * float64(populationSize))
	return populationSize + int(retries)
}

func (a *Algorithm) workers() int {
	if !a.ctx.UseParallelization {
		return 1
	}
	if a.ctx.Workers > 0 {
		return a.ctx.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// makePartitions splits [Elites, PopulationSize) into disjoint ranges. The
// sequential mode has one partition driven by the master generator; parallel
// partitions get generators seeded from the master seed and their index.
func (a *Algorithm) makePartitions() []*partition {
	start, end := a.ctx.Elites, a.ctx.PopulationSize
	size := end - start

	n := a.workers()
	if n > size {
		n = size
	}
	if n < 1 {
		n = 1
	}

	partitions := make([]*partition, n)
	for k := 0; k < n; k++ {
		rng := a.rng
		if a.ctx.UseParallelization {
			rng = rand.New(rand.NewSource(a.ctx.Seed + int64(k) + 1))
		}

		partitions[k] = &partition{
			start: start + k*size/n,
			end:   start + (k+1)*size/n,
			rng:   rng,
			stack: newEvalStack(2 * a.ctx.TreeLength),
		}
	}
	return partitions
}

func (a *Algorithm) done() bool {
	return a.generation >= a.ctx.Generations || a.selectionPressure > a.ctx.MaxSelectionPressure
}

// Step evolves one generation and reports whether evolution should stop
func (a *Algorithm) Step() (bool, error) {
	if a.population == nil {
		return true, errors.New("step before initialization")
	}
	if a.done() {
		return true, nil
	}

	sel := newSelector(a.ctx.Selection, a.population)
	generationCount := 0

	if len(a.partitions) == 1 {
		count, err := a.breedRange(a.partitions[0], sel)
		if err != nil {
			return true, err
		}
		generationCount = count
	} else {
		p := pool.New().WithErrors().WithMaxGoroutines(a.workers())
		for _, part := range a.partitions {
			part := part
			p.Go(func() error {
				count, err := a.breedRange(part, sel)

				a.countLock.Lock()
				generationCount += count
				a.countLock.Unlock()

				return err
			})
		}
		if err := p.Wait(); err != nil {
			return true, err
		}
	}

	// Partitions only track their own best while breeding. Merging them in
	// partition order after the join keeps ties resolved the same way on
	// every run.
	for _, part := range a.partitions {
		if part.best != nil {
			a.offerBest(part.best)
			part.best = nil
		}
	}

	a.population, a.next = a.next, a.population
	a.keepElites()

	a.evaluationCount += generationCount
	a.selectionPressure = float64(generationCount) / float64(a.ctx.PopulationSize)

	if a.ctx.LogGenerations {
		numPrinter.Fprintf(a.ctx.LogWriter, "Generation: %04d, Evaluations: %04d, Selection Pressure: %.2f, Score: %.12f\n",
			a.generation, generationCount, a.selectionPressure, a.bestFitness)
	}

	a.generation++
	return a.done(), nil
}

// breedRange fills the write buffer slots of one partition and returns the
// number of evaluations spent. Offspring with undefined fitness are thrown
// away and their slot is bred again, until the partition exceeds its share
// of the selection pressure ceiling.
func (a *Algorithm) breedRange(part *partition, sel *selector) (int, error) {
	ctx := a.ctx
	rng := part.rng
	stack := part.stack
	data := a.data

	count := 0
	limit := ctx.MaxSelectionPressure * float64(part.end-part.start)

	for i := part.start; i < part.end; {
		if float64(count) > limit {
			break
		}

		first := a.population[sel.pick(rng)]
		second := a.population[sel.pick(rng)]

		var child *Program
		evaluated := false

		if rng.Float64() < ctx.CrossoverRate {
			if x, y, ok := Crossover(rng, first, second); ok {
				if _, err := evaluateSet(stack, x, data); err != nil {
					return count, err
				}
				if _, err := evaluateSet(stack, y, data); err != nil {
					return count, err
				}
				count += 2

				child = fitter(x, y)
				evaluated = true
			}
		}
		if child == nil {
			child = first.Clone()
		}

		if rng.Float64() < ctx.MutationRate {
			child = ctx.mutate(rng, child)
			evaluated = false
		}

		if !evaluated {
			if _, err := evaluateSet(stack, child, data); err != nil {
				return count, err
			}
			count++
		}

		if child.Defined() && ctx.UseConstantOptimization && rng.Float64() < ctx.ConstantOptimizationRate {
			optimized, _, n, err := ctx.optimizeConstants(rng, stack, child, data)
			count += n
			if err != nil {
				return count, err
			}
			child = optimized
		}

		if !child.Defined() {
			continue
		}

		a.next[i] = child
		if part.best == nil || child.Fitness > part.best.Fitness {
			part.best = child
		}
		i++
	}

	return count, nil
}

// fitter prefers a defined fitness, then the higher one
func fitter(x, y *Program) *Program {
	if !y.Defined() {
		return x
	}
	if !x.Defined() || y.Fitness > x.Fitness {
		return y
	}
	return x
}

// offerBest is only called after the partitions have joined
func (a *Algorithm) offerBest(p *Program) {
	if a.best == nil || p.Fitness > a.bestFitness {
		a.bestFitness = p.Fitness
		a.best = p.CloneWithResults()
	}
}

// keepElites writes the best program into slot 0 of the population about to
// be bred from, and the runners-up of the finished generation into the other
// elite slots. Elite slots are never written while breeding.
func (a *Algorithm) keepElites() {
	if a.ctx.Elites == 0 {
		return
	}

	a.population[0] = a.best.Clone()
	if a.ctx.Elites == 1 {
		return
	}

	finished := a.next
	ranked := make([]int, len(finished))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return finished[ranked[i]].Fitness > finished[ranked[j]].Fitness
	})

	// The top ranked program normally is the best one, already in slot 0
	skippedBest := false
	for slot, k := 1, 0; slot < a.ctx.Elites && k < len(ranked); k++ {
		candidate := finished[ranked[k]]
		if !skippedBest && candidate.Fitness == a.bestFitness {
			skippedBest = true
			continue
		}
		a.population[slot] = candidate.Clone()
		slot++
	}
}
