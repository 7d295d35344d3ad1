package pgp

import (
	"math"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Breed", func() {
	rng := newTestRand()
	data := linearData(rng, 10)

	DescribeTable("produces well formed programs",
		func(length int, operators ...string) {
			ctx := testContext(testParams(operators...))
			for i := 0; i < 500; i++ {
				p := ctx.breed(rng, length, data.Rows)
				Expect(p.Len()).To(BeNumerically(">=", length))
				Expect(isOperation(p.Symbols[0])).To(BeFalse())
				Expect(p.Defined()).To(BeFalse())
				expectWellFormed(p, data)
			}
		},
		Entry("single symbol", 1),
		Entry("default catalog", 50),
		Entry("binary only", 20, "+", "*"),
		Entry("mostly unary", 20, "+", "sin", "cos", "tan", "tanh", "log", "exp"),
	)

	It("samples constants within the variable bounds", func() {
		ctx := testContext(testParams())
		for i := 0; i < 100; i++ {
			_, values := ctx.breed(rng, 30, data.Rows).Constants()
			for _, v := range values {
				Expect(v).To(And(BeNumerically(">=", 0), BeNumerically("<=", 10)))
			}
		}
	})

	It("only references input variables", func() {
		ctx := testContext(testParams())
		p := ctx.breed(rng, 100, data.Rows)
		for _, s := range p.Symbols {
			if v, ok := s.(Variable); ok {
				Expect(v).To(Equal(Variable{Name: "x1", Index: 0, Coefficient: 1}))
			}
		}
	})
})

var _ = Describe("SubtreeStart", func() {
	DescribeTable("finds the first symbol of a subtree",
		func(idx int, expected int, symbols ...Symbol) {
			Expect(SubtreeStart(symbols, idx)).To(Equal(expected))
		},
		Entry("a b + (root)", 2, 0, varA, varB, op(Addition)),
		Entry("a b + c * (inner)", 2, 0, varA, varB, op(Addition), constant(1), op(Multiplication)),
		Entry("a b + c * (root)", 4, 0, varA, varB, op(Addition), constant(1), op(Multiplication)),
		Entry("a b c + * (inner)", 3, 1, varA, varB, constant(1), op(Addition), op(Multiplication)),
		Entry("a b sin + (unary)", 2, 1, varA, varB, op(Sine), op(Addition)),
		Entry("a b sin + (root)", 3, 0, varA, varB, op(Sine), op(Addition)),
		Entry("terminal", 1, -1, varA, varB, op(Addition)),
		Entry("malformed", 1, -1, varA, op(Addition)),
	)
})

var _ = Describe("Crossover", func() {
	rng := newTestRand()
	data := linearData(rng, 10)

	var ctx *fitContext
	BeforeEach(func() {
		ctx = testContext(testParams())
	})

	It("keeps offspring well formed and parents untouched", func() {
		crossed := 0
		for i := 0; i < 1000; i++ {
			a := ctx.breed(rng, 20, data.Rows)
			b := ctx.breed(rng, 30, data.Rows)
			aBefore, bBefore := a.String(), b.String()

			x, y, ok := Crossover(rng, a, b)
			Expect(a.String()).To(Equal(aBefore))
			Expect(b.String()).To(Equal(bBefore))
			if !ok {
				continue
			}
			crossed++

			expectWellFormed(x, data)
			expectWellFormed(y, data)
			Expect(x.Len() + y.Len()).To(Equal(a.Len() + b.Len()))
			Expect(x.Defined()).To(BeFalse())
			Expect(y.Defined()).To(BeFalse())
		}
		Expect(crossed).To(BeNumerically(">", 900))
	})

	It("declines parents without operations", func() {
		_, _, ok := Crossover(rng, ProgramOf(1, varA), ProgramOf(1, varA, varB, op(Addition)))
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Mutate", func() {
	rng := newTestRand()
	data := linearData(rng, 10)

	It("keeps programs well formed", func() {
		ctx := testContext(testParams())
		for i := 0; i < 1000; i++ {
			original := ctx.breed(rng, 25, data.Rows)
			before := original.String()

			mutated := ctx.mutate(rng, original)
			Expect(original.String()).To(Equal(before))
			Expect(mutated.Defined()).To(BeFalse())
			expectWellFormed(mutated, data)
		}
	})

	It("moves a constant by at most a tenth of its value", func() {
		ctx := testContext(testParams())
		for i := 0; i < 100; i++ {
			mutated := ctx.mutate(rng, ProgramOf(1, constant(2)))
			Expect(mutated.Symbols[0].(Constant).Value).To(BeNumerically("~", 2, 0.2))
		}
	})

	It("replaces a variable with an input variable", func() {
		ctx := testContext(testParams())
		mutated := ctx.mutate(rng, ProgramOf(1, varB))
		Expect(mutated.Symbols).To(Equal([]Symbol{Variable{Name: "x1", Index: 0, Coefficient: 1}}))
	})

	It("replaces operations with others of the same arity or removes them", func() {
		ctx := testContext(testParams("+", "-", "sin"))
		seen := map[string]bool{}
		for i := 0; i < 200; i++ {
			p := ProgramOf(1, varA, op(Sine))
			seen[ctx.mutate(rng, p).Shape()] = true
		}
		// sin only has itself to be replaced with, so it is kept or removed;
		// the variable may be swapped but keeps its shape
		Expect(seen).To(Equal(map[string]bool{"v op1": true, "v": true}))
	})
})

var _ = Describe("Constant optimization", func() {
	rng := newTestRand()
	data := linearData(rng, 20)

	var ctx *fitContext
	BeforeEach(func() {
		ctx = testContext(testParams())
	})

	It("never lowers the fitness and keeps the structure", func() {
		stack := newEvalStack(16)
		optimized := 0
		for optimized < 50 {
			p := ctx.breed(rng, 15, data.Rows)
			if _, values := p.Constants(); len(values) == 0 {
				continue
			}
			fitness, err := evaluateSet(stack, p, data)
			Expect(err).ToNot(HaveOccurred())
			if !p.Defined() {
				continue
			}
			optimized++

			result, resultFitness, evaluations, err := ctx.optimizeConstants(rng, stack, p, data)
			Expect(err).ToNot(HaveOccurred())
			Expect(resultFitness).To(BeNumerically(">=", fitness))
			Expect(result.Fitness).To(Equal(resultFitness))
			Expect(result.Shape()).To(Equal(p.Shape()))
			Expect(evaluations).To(BeNumerically(">", 1))
		}
	})

	It("keeps an exact program unchanged", func() {
		p := ProgramOf(data.Rows, Variable{Name: "x1", Index: 0, Coefficient: 1}, constant(3), op(Multiplication))
		stack := newEvalStack(4)

		fitness, err := evaluateSet(stack, p, data)
		Expect(err).ToNot(HaveOccurred())
		Expect(fitness).To(Equal(1.0))

		result, resultFitness, _, err := ctx.optimizeConstants(rng, stack, p, data)
		Expect(err).ToNot(HaveOccurred())
		Expect(resultFitness).To(Equal(1.0))
		Expect(result.String()).To(Equal(p.String()))

		_, values := result.Constants()
		Expect(values).To(Equal([]float64{3}))
	})

	It("improves a shifted sine", func() {
		// sin(x1 + 0.5) against sin(x1 + 0.05)
		x := make([]float64, 50)
		y := make([]float64, 50)
		for i := range x {
			x[i] = float64(i) / 10
			y[i] = math.Sin(x[i] + 0.05)
		}
		data := columnData(x, y)
		p := ProgramOf(len(x), Variable{Name: "x1", Index: 0, Coefficient: 1}, constant(0.5), op(Addition), op(Sine))

		stack := newEvalStack(4)
		fitness, err := evaluateSet(stack, p, data)
		Expect(err).ToNot(HaveOccurred())

		result, resultFitness, _, err := ctx.optimizeConstants(rng, stack, p, data)
		Expect(err).ToNot(HaveOccurred())
		Expect(resultFitness).To(BeNumerically(">", fitness))
		Expect(result.Symbols[1].(Constant).Value).To(BeNumerically("<", 0.5))
	})
})
