package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/they4kman/experimentation/machine-learning/genetic-programming/dataset"
	"github.com/they4kman/experimentation/machine-learning/genetic-programming/formula"
	"github.com/they4kman/experimentation/machine-learning/genetic-programming/pgp"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

var numPrinter = message.NewPrinter(language.English)

type ListValue struct {
	list *[]string
}

func (v ListValue) String() string {
	if v.list != nil {
		return strings.Join(*v.list, ",")
	} else {
		return ""
	}
}

func (v ListValue) Set(s string) error {
	*v.list = (*v.list)[:0]
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*v.list = append(*v.list, item)
		}
	}
	return nil
}

func loadConfig(path string, params *pgp.Params) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(params); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func main() {
	dataPath := ""
	configPath := ""
	separator := ";"
	rows := 1000
	verbose := false

	flag.StringVar(&dataPath, "data", dataPath, "Delimited text file with a header row of variable names")
	flag.StringVar(&configPath, "config", configPath, "YAML file of parameters. Flags given on the command line take precedence")
	flag.StringVar(&separator, "separator", separator, "Field separator of the data file")
	flag.IntVar(&rows, "rows", rows, "Number of data rows to train on, taken before shuffling. Set to 0 to use all rows")
	flag.BoolVar(&verbose, "verbose", verbose, "Log debug events")

	params := pgp.DefaultParams()
	flag.Var(ListValue{&params.InputVariables}, "inputs", "Comma-separated input variables (default all columns but the target)")
	flag.StringVar(&params.TargetVariable, "target", params.TargetVariable, "Variable to fit")
	flag.Var(ListValue{&params.Operators}, "operators", "Comma-separated operator symbols or names")
	flag.IntVar(&params.Generations, "generations", params.Generations, "Number of generations to evolve")
	flag.IntVar(&params.PopulationSize, "population-size", params.PopulationSize, "Number of programs in the population")
	flag.IntVar(&params.TreeLength, "tree-length", params.TreeLength, "Number of symbols randomly bred programs aim for")
	flag.Float64Var(&params.CrossoverRate, "crossover-rate", params.CrossoverRate, "Rate at which two selected parents exchange subtrees")
	flag.Float64Var(&params.MutationRate, "mutation-rate", params.MutationRate, "Rate at which offspring change one symbol")
	flag.Float64Var(&params.MaxSelectionPressure, "max-selection-pressure", params.MaxSelectionPressure, "Stop once a generation needs more evaluations per program than this")
	flag.IntVar(&params.Elites, "elites", params.Elites, "Number of best programs carried into each generation")
	flag.BoolVar(&params.UseParallelization, "parallel", params.UseParallelization, "Breed each generation concurrently")
	flag.IntVar(&params.Workers, "workers", params.Workers, "Number of goroutines breeding a generation. Set to 0 to use one per CPU")
	flag.BoolVar(&params.UseConstantOptimization, "optimize-constants", params.UseConstantOptimization, "Refine the constants of some offspring")
	flag.BoolVar(&params.LogGenerations, "log-generations", params.LogGenerations, "Print one line per generation")
	flag.Int64Var(&params.Seed, "seed", params.Seed, "Seed of the random generators")

	flag.Parse()

	if configPath != "" {
		if err := loadConfig(configPath, params); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		// Command line flags win over the config file
		flag.Parse()
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	params.Logger = logger

	if dataPath == "" || params.TargetVariable == "" || separator == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(dataPath, []rune(separator)[0], rows, params); err != nil {
		logger.Error("fit failed", "error", err)
		os.Exit(1)
	}
}

func run(dataPath string, separator rune, rows int, params *pgp.Params) error {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	options := dataset.Options{Separator: separator}
	if len(params.InputVariables) > 0 {
		options.Variables = append(append([]string(nil), params.InputVariables...), params.TargetVariable)
	}
	set, err := dataset.ReadFile(dataPath, options)
	if err != nil {
		return err
	}

	if len(params.InputVariables) == 0 {
		for _, name := range set.Names() {
			if name != params.TargetVariable {
				params.InputVariables = append(params.InputVariables, name)
			}
		}
	}

	// Constants are sampled from the bounds of the whole file
	params.VariableBounds = set.Bounds()

	if rows > 0 && rows < set.Rows() {
		if set, err = set.Subset(0, rows); err != nil {
			return err
		}
	}
	set = set.Shuffle(rand.New(rand.NewSource(params.Seed)))

	data, indices, err := set.Data(params.InputVariables, params.TargetVariable)
	if err != nil {
		return err
	}
	params.VariableIndices = indices

	logger.Info("data loaded",
		"name", set.Name,
		"rows", set.Rows(),
		"inputs", strings.Join(params.InputVariables, ","),
		"target", params.TargetVariable,
	)

	algorithm, err := pgp.New(params)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	if err := algorithm.Fit(data, true); err != nil {
		return err
	}
	runtime := time.Since(startedAt)

	best := algorithm.Best()
	best.Statistics()

	f, err := formula.Compile(best)
	if err != nil {
		return err
	}

	evaluations := algorithm.EvaluationCount()
	numPrinter.Printf("Runtime: %v\n", runtime)
	numPrinter.Printf("Evaluations: %d\n", evaluations)
	numPrinter.Printf("Time per evaluation: %v\n", runtime/time.Duration(evaluations))
	numPrinter.Printf("Generations: %d\n", algorithm.Generation())
	numPrinter.Printf("Pearson R: %.12f\n", algorithm.BestFitness())
	numPrinter.Printf("NMSE: %.6f, MAE: %.6f, MRE: %.6f\n", best.NMSE, best.MAE, best.MRE)
	fmt.Printf("Program: %s\n", best)
	fmt.Printf("%s = %s\n", params.TargetVariable, f)

	return nil
}
