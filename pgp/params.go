package pgp

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
)

// Bounds is the observed [Min, Max] range of a variable. Constants created by
// the breeder are sampled from the bounds of a randomly chosen variable.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type Params struct {
	// Names of the columns programs may reference
	InputVariables []string `yaml:"inputVariables"`

	// Name of the column the programs are fit against
	TargetVariable string `yaml:"targetVariable"`

	// Column index of every variable in Data.Values. Must contain each input
	// variable and the target.
	VariableIndices map[string]int `yaml:"variableIndices"`

	// Observed value range per variable, used to sample constants. Falls back
	// to [-1, 1] constants when empty.
	VariableBounds map[string]Bounds `yaml:"variableBounds"`

	// Number of generations to evolve. Zero evaluates only the initial population.
	Generations int `yaml:"generations"`

	// Number of Programs in the population, elites included
	PopulationSize int `yaml:"populationSize"`

	// Number of symbols the breeder aims for. Bred programs may be longer, as
	// operators are appended until the program closes into a single root.
	TreeLength int `yaml:"treeLength"`

	// Probability that two selected parents are crossed over. Otherwise the
	// first parent is carried over unchanged (before mutation).
	CrossoverRate float64 `yaml:"crossoverRate"`

	// Probability that an offspring is mutated once
	MutationRate float64 `yaml:"mutationRate"`

	// Ceiling on evaluation attempts per population slot within a generation.
	// Evolution stops once a generation needed more attempts than this, i.e.
	// too many offspring were numerically undefined.
	MaxSelectionPressure float64 `yaml:"maxSelectionPressure"`

	// How parents are drawn from the population. Defaults to SelectUniform.
	Selection Selection `yaml:"selection"`

	// Number of slots at the head of the population reserved for the best
	// Programs found so far
	Elites int `yaml:"elites"`

	// Operator symbols or names forming the catalog. Defaults to DefaultOperators.
	Operators []string `yaml:"operators"`

	// Split each generation into partitions bred concurrently
	UseParallelization bool `yaml:"useParallelization"`

	// Max goroutines used when UseParallelization is set. Set to 0 to use one
	// per CPU.
	Workers int `yaml:"workers"`

	// Refine the constants of some offspring with a local search
	UseConstantOptimization bool `yaml:"useConstantOptimization"`

	// Probability an offspring is handed to the constant optimizer
	ConstantOptimizationRate float64 `yaml:"constantOptimizationRate"`

	// Print one progress line per generation to LogWriter
	LogGenerations bool `yaml:"logGenerations"`

	// Destination of generation progress lines. Defaults to stdout.
	LogWriter io.Writer `yaml:"-"`

	// Structured logger for lifecycle events. Defaults to a discarding logger.
	Logger *slog.Logger `yaml:"-"`

	// Seed of the master random generator. Parallel partitions derive their
	// own generators from it.
	Seed int64 `yaml:"seed"`
}

func DefaultParams() *Params {
	return &Params{
		VariableIndices: map[string]int{},
		VariableBounds:  map[string]Bounds{},

		Generations:    1000,
		PopulationSize: 1000,
		TreeLength:     50,

		CrossoverRate:        1.0,
		MutationRate:         0.25,
		MaxSelectionPressure: 200,
		Selection:            SelectUniform,
		Elites:               1,

		Operators: append([]string(nil), DefaultOperators...),

		UseParallelization:       false,
		Workers:                  0,
		UseConstantOptimization:  false,
		ConstantOptimizationRate: 0.1,
		LogGenerations:           false,

		Seed: 1,
	}
}

// NewParams derives a column index map from the order of inputs followed by
// the target, which is the layout dataset.Set.Data produces
func NewParams(inputs []string, target string) *Params {
	params := DefaultParams()
	params.InputVariables = append([]string(nil), inputs...)
	params.TargetVariable = target
	for i, name := range inputs {
		params.VariableIndices[name] = i
	}
	if _, exists := params.VariableIndices[target]; !exists {
		params.VariableIndices[target] = len(inputs)
	}
	return params
}

func (p *Params) validate() error {
	if len(p.InputVariables) == 0 {
		return fmt.Errorf("%w: no input variables", ErrInvalidParams)
	}
	for _, name := range p.InputVariables {
		if _, ok := p.VariableIndices[name]; !ok {
			return fmt.Errorf("%w: input variable %q missing from variable indices", ErrInvalidParams, name)
		}
	}
	if p.TargetVariable == "" {
		return fmt.Errorf("%w: no target variable", ErrInvalidParams)
	}
	if _, ok := p.VariableIndices[p.TargetVariable]; !ok {
		return fmt.Errorf("%w: target variable %q missing from variable indices", ErrInvalidParams, p.TargetVariable)
	}
	for name, b := range p.VariableBounds {
		if isFailure(b.Min) || isFailure(b.Max) || b.Min > b.Max {
			return fmt.Errorf("%w: bounds of %q are not a finite range", ErrInvalidParams, name)
		}
	}
	if p.PopulationSize < 1 {
		return fmt.Errorf("%w: population size %d must be positive", ErrInvalidParams, p.PopulationSize)
	}
	if p.Elites < 0 || p.Elites >= p.PopulationSize {
		return fmt.Errorf("%w: elites %d must be in [0, population size)", ErrInvalidParams, p.Elites)
	}
	if p.Generations < 0 {
		return fmt.Errorf("%w: generations %d must not be negative", ErrInvalidParams, p.Generations)
	}
	if p.TreeLength < 1 {
		return fmt.Errorf("%w: tree length %d must be positive", ErrInvalidParams, p.TreeLength)
	}
	for name, rate := range map[string]float64{
		"crossover rate":             p.CrossoverRate,
		"mutation rate":              p.MutationRate,
		"constant optimization rate": p.ConstantOptimizationRate,
	} {
		if math.IsNaN(rate) || rate < 0 || rate > 1 {
			return fmt.Errorf("%w: %s %v must be in [0, 1]", ErrInvalidParams, name, rate)
		}
	}
	if !(p.MaxSelectionPressure > 0) {
		return fmt.Errorf("%w: max selection pressure must be positive", ErrInvalidParams)
	}
	if p.Selection != "" {
		if err := p.Selection.validate(); err != nil {
			return err
		}
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers %d must not be negative", ErrInvalidParams, p.Workers)
	}
	return nil
}

// fitContext is the immutable, validated form of Params shared by every worker
type fitContext struct {
	Params

	catalog  *Catalog
	inputs   []Variable
	bounds   []Bounds
	maxIndex int
}

func newFitContext(params *Params) (*fitContext, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil params", ErrInvalidParams)
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	ctx := &fitContext{Params: *params}

	operators := params.Operators
	if len(operators) == 0 {
		operators = DefaultOperators
	}
	catalog, err := NewCatalog(operators...)
	if err != nil {
		return nil, err
	}
	ctx.catalog = catalog

	ctx.maxIndex = params.VariableIndices[params.TargetVariable]
	for _, name := range params.InputVariables {
		index := params.VariableIndices[name]
		ctx.inputs = append(ctx.inputs, Variable{Name: name, Index: index, Coefficient: 1.0})
		if index > ctx.maxIndex {
			ctx.maxIndex = index
		}
	}

	names := make([]string, 0, len(params.VariableBounds))
	for name := range params.VariableBounds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx.bounds = append(ctx.bounds, params.VariableBounds[name])
	}
	if len(ctx.bounds) == 0 {
		ctx.bounds = []Bounds{{Min: -1, Max: 1}}
	}

	if ctx.Selection == "" {
		ctx.Selection = SelectUniform
	}
	if ctx.LogWriter == nil {
		ctx.LogWriter = os.Stdout
	}
	if ctx.Logger == nil {
		ctx.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return ctx, nil
}
