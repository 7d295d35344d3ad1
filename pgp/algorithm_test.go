package pgp

import (
	"bytes"
	"errors"
	"math"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Algorithm", func() {
	var (
		params *Params
		data   Data
	)

	BeforeEach(func() {
		params = testParams("+", "*")
		params.PopulationSize = 50
		params.TreeLength = 10
		params.Generations = 20
		data = linearData(newTestRand(), 100)
	})

	DescribeTable("rejects invalid params",
		func(modify func(p *Params)) {
			modify(params)
			_, err := New(params)
			Expect(err).To(MatchError(ErrInvalidParams))
		},
		Entry("no inputs", func(p *Params) { p.InputVariables = nil }),
		Entry("input without index", func(p *Params) { p.InputVariables = []string{"x1", "x2"} }),
		Entry("target without index", func(p *Params) { p.TargetVariable = "z" }),
		Entry("no target", func(p *Params) { p.TargetVariable = "" }),
		Entry("empty population", func(p *Params) { p.PopulationSize = 0 }),
		Entry("elites filling the population", func(p *Params) { p.Elites = p.PopulationSize }),
		Entry("negative elites", func(p *Params) { p.Elites = -1 }),
		Entry("negative generations", func(p *Params) { p.Generations = -1 }),
		Entry("zero tree length", func(p *Params) { p.TreeLength = 0 }),
		Entry("crossover rate above 1", func(p *Params) { p.CrossoverRate = 1.5 }),
		Entry("negative mutation rate", func(p *Params) { p.MutationRate = -0.1 }),
		Entry("NaN optimization rate", func(p *Params) { p.ConstantOptimizationRate = math.NaN() }),
		Entry("zero selection pressure", func(p *Params) { p.MaxSelectionPressure = 0 }),
		Entry("unknown selection", func(p *Params) { p.Selection = "tournament" }),
		Entry("unknown operator", func(p *Params) { p.Operators = []string{"+", "%"} }),
		Entry("unary-only catalog", func(p *Params) { p.Operators = []string{"sin"} }),
		Entry("inverted bounds", func(p *Params) { p.VariableBounds["x1"] = Bounds{Min: 1, Max: 0} }),
		Entry("negative workers", func(p *Params) { p.Workers = -2 }),
	)

	It("rejects data missing a referenced column", func() {
		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())

		err = algorithm.Initialize(Data{Values: data.Values[:data.Rows], Rows: data.Rows})
		Expect(err).To(MatchError(ErrInvalidParams))
	})

	It("refuses to step before initialization", func() {
		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())

		_, err = algorithm.Step()
		Expect(err).To(HaveOccurred())
	})

	Describe("Initialize", func() {
		It("fills the population with defined programs", func() {
			algorithm, err := New(params)
			Expect(err).ToNot(HaveOccurred())
			Expect(algorithm.Initialize(data)).To(Succeed())

			Expect(algorithm.Population()).To(HaveLen(params.PopulationSize))
			for _, p := range algorithm.Population() {
				Expect(p.Defined()).To(BeTrue())
				expectWellFormed(p, data)
				Expect(p.Fitness).To(BeNumerically("<=", algorithm.BestFitness()))
			}

			Expect(algorithm.EvaluationCount()).To(BeNumerically(">=", params.PopulationSize))
			Expect(algorithm.Population()[0].String()).To(Equal(algorithm.Best().String()))
			Expect(algorithm.Best().Predicted).To(HaveLen(data.Rows))
		})

		It("stalls when no program can be scored", func() {
			params.PopulationSize = 10
			params.MaxSelectionPressure = 2

			for i := range data.Values[data.Rows:] {
				data.Values[data.Rows+i] = 1
			}

			algorithm, err := New(params)
			Expect(err).ToNot(HaveOccurred())

			err = algorithm.Fit(data, true)
			Expect(errors.Is(err, ErrStalled)).To(BeTrue())
			// one attempt per slot plus two retries per slot
			Expect(algorithm.EvaluationCount()).To(Equal(30))
		})

		It("fills the population under a selection pressure ceiling below 1", func() {
			params.MaxSelectionPressure = 0.5
			params.Generations = 100

			algorithm, err := New(params)
			Expect(err).ToNot(HaveOccurred())
			Expect(algorithm.Fit(data, true)).To(Succeed())

			Expect(algorithm.Population()).To(HaveLen(params.PopulationSize))
			for _, p := range algorithm.Population() {
				Expect(p.Defined()).To(BeTrue())
			}
		})
	})

	It("stops once a generation exceeds the selection pressure ceiling", func() {
		// Every slot costs exactly two evaluations, so the partition of 49
		// slots gives up after 26 and the generation's pressure is 0.52
		params.MutationRate = 0
		params.MaxSelectionPressure = 0.5
		params.Generations = 100

		reference, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(reference.Initialize(data)).To(Succeed())

		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(algorithm.Fit(data, true)).To(Succeed())

		Expect(algorithm.Generation()).To(Equal(1))
		Expect(algorithm.SelectionPressure()).To(Equal(26.0 / 50.0))
		Expect(algorithm.EvaluationCount()).To(Equal(reference.EvaluationCount() + 26))
		for _, p := range algorithm.Population() {
			Expect(p.Defined()).To(BeTrue())
			expectWellFormed(p, data)
		}
	})

	It("only copies parents without crossover or mutation", func() {
		params.CrossoverRate = 0
		params.MutationRate = 0
		params.Generations = 5

		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(algorithm.Initialize(data)).To(Succeed())

		for {
			previous := map[string]bool{}
			for _, p := range algorithm.Population() {
				previous[p.String()] = true
			}
			evaluations := algorithm.EvaluationCount()

			done, err := algorithm.Step()
			Expect(err).ToNot(HaveOccurred())

			// One evaluation per bred slot
			Expect(algorithm.EvaluationCount() - evaluations).To(Equal(params.PopulationSize - params.Elites))
			for _, p := range algorithm.Population() {
				Expect(previous).To(HaveKey(p.String()))
			}

			if done {
				break
			}
		}
		Expect(algorithm.Generation()).To(Equal(5))
	})

	It("only evaluates the initial population with zero generations", func() {
		params.Generations = 0

		reference, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(reference.Initialize(data)).To(Succeed())

		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(algorithm.Fit(data, true)).To(Succeed())

		Expect(algorithm.Generation()).To(Equal(0))
		Expect(algorithm.EvaluationCount()).To(Equal(reference.EvaluationCount()))
		Expect(algorithm.BestFitness()).To(Equal(reference.BestFitness()))
		Expect(algorithm.Best().String()).To(Equal(reference.Best().String()))
	})

	It("never loses its best program", func() {
		params.Elites = 3

		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(algorithm.Initialize(data)).To(Succeed())

		previous := algorithm.BestFitness()
		evaluations := algorithm.EvaluationCount()
		for {
			done, err := algorithm.Step()
			Expect(err).ToNot(HaveOccurred())

			Expect(algorithm.BestFitness()).To(BeNumerically(">=", previous))
			Expect(algorithm.EvaluationCount()).To(BeNumerically(">", evaluations))
			Expect(algorithm.SelectionPressure()).To(BeNumerically(">", 0))

			population := algorithm.Population()
			Expect(population[0].String()).To(Equal(algorithm.Best().String()))
			Expect(population[0].Fitness).To(Equal(algorithm.BestFitness()))
			for _, p := range population {
				Expect(p.Defined()).To(BeTrue())
				expectWellFormed(p, data)
			}

			previous = algorithm.BestFitness()
			evaluations = algorithm.EvaluationCount()
			if done {
				break
			}
		}
		Expect(algorithm.Generation()).To(Equal(params.Generations))
	})

	It("continues an existing population", func() {
		params.Generations = 5

		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(algorithm.Fit(data, true)).To(Succeed())
		Expect(algorithm.Generation()).To(Equal(5))

		// The generation budget is spent, so nothing happens
		evaluations := algorithm.EvaluationCount()
		Expect(algorithm.Fit(data, false)).To(Succeed())
		Expect(algorithm.EvaluationCount()).To(Equal(evaluations))
	})

	It("fits a linear target", func() {
		params.Generations = 200

		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(algorithm.Fit(data, true)).To(Succeed())

		Expect(algorithm.BestFitness()).To(BeNumerically(">", 0.99))
		Expect(algorithm.Best().Fitness).To(Equal(algorithm.BestFitness()))
	})

	DescribeTable("is reproducible for a seed",
		func(modify func(p *Params)) {
			modify(params)

			run := func() *Algorithm {
				algorithm, err := New(params)
				Expect(err).ToNot(HaveOccurred())
				Expect(algorithm.Fit(data, true)).To(Succeed())
				return algorithm
			}
			first, second := run(), run()

			Expect(second.BestFitness()).To(Equal(first.BestFitness()))
			Expect(second.Best().String()).To(Equal(first.Best().String()))
			Expect(second.EvaluationCount()).To(Equal(first.EvaluationCount()))
		},
		Entry("sequential", func(p *Params) {}),
		Entry("parallel", func(p *Params) {
			p.UseParallelization = true
			p.Workers = 4
		}),
		Entry("parallel with default operators and constant optimization", func(p *Params) {
			p.Operators = DefaultOperators
			p.UseParallelization = true
			p.Workers = 3
			p.UseConstantOptimization = true
			p.ConstantOptimizationRate = 0.5
			p.Selection = SelectProportional
		}),
	)

	It("logs one line per generation", func() {
		var buf bytes.Buffer
		params.Generations = 3
		params.LogGenerations = true
		params.LogWriter = &buf

		algorithm, err := New(params)
		Expect(err).ToNot(HaveOccurred())
		Expect(algorithm.Fit(data, true)).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(3))
		for _, line := range lines {
			Expect(line).To(HavePrefix("Generation: "))
			Expect(line).To(ContainSubstring("Selection Pressure: "))
			Expect(line).To(ContainSubstring("Score: "))
		}
	})
})

var _ = Describe("Selection", func() {
	It("draws proportionally to positive fitness", func() {
		population := []*Program{
			{Fitness: 0.75},
			{Fitness: -0.5},
			{Fitness: 0.25},
			{Fitness: math.NaN()},
		}
		sel := newSelector(SelectProportional, population)

		rng := newTestRand()
		counts := make([]int, len(population))
		for i := 0; i < 10000; i++ {
			counts[sel.pick(rng)]++
		}

		Expect(counts[1]).To(BeZero())
		Expect(counts[3]).To(BeZero())
		Expect(counts[0]).To(BeNumerically("~", 7500, 300))
		Expect(counts[2]).To(BeNumerically("~", 2500, 300))
	})

	It("falls back to uniform without positive fitness", func() {
		population := []*Program{{Fitness: -1}, {Fitness: 0}}
		sel := newSelector(SelectProportional, population)

		rng := newTestRand()
		counts := make([]int, len(population))
		for i := 0; i < 1000; i++ {
			counts[sel.pick(rng)]++
		}
		Expect(counts[0]).To(BeNumerically(">", 0))
		Expect(counts[1]).To(BeNumerically(">", 0))
	})
})
