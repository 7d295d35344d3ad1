// Package formula renders evolved programs as infix expressions and compiles
// them into gval evaluables, so a model can be inspected and applied without
// the evolution engine.
package formula

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/PaesslerAG/gval"
	"github.com/they4kman/experimentation/machine-learning/genetic-programming/pgp"
)

// Language evaluates rendered formulas: arithmetic plus the unary operators
// of the engine as functions
var Language gval.Language

func init() {
	Language = gval.NewLanguage(
		gval.Arithmetic(),
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("tan", math.Tan),
		unary("tanh", math.Tanh),
		unary("log", math.Log),
		unary("exp", math.Exp),
	)
}

func unary(name string, fn func(float64) float64) gval.Language {
	return gval.Function(name, func(arguments ...interface{}) (interface{}, error) {
		if len(arguments) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(arguments))
		}
		x, isFloat := arguments[0].(float64)
		if !isFloat {
			return nil, fmt.Errorf("%s expects a number, got: %v", name, arguments[0])
		}
		return fn(x), nil
	})
}

// Render returns the infix form of p using variable names, e.g.
// "sin((x1 * 2.5))"
func Render(p *pgp.Program) (string, error) {
	return render(p, func(v pgp.Variable) string { return v.Name })
}

// identifier is the name a variable gets in the compiled expression. Column
// names are not necessarily valid gval identifiers.
func identifier(index int) string {
	return "v" + strconv.Itoa(index)
}

func render(p *pgp.Program, name func(pgp.Variable) string) (string, error) {
	var stack []string
	pop := func() string {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top
	}

	for _, symbol := range p.Symbols {
		switch s := symbol.(type) {
		case pgp.Variable:
			if s.Coefficient == 1 {
				stack = append(stack, name(s))
			} else {
				stack = append(stack, "("+number(s.Coefficient)+" * "+name(s)+")")
			}
		case pgp.Constant:
			stack = append(stack, "("+number(s.Value)+")")
		case pgp.Operation:
			if len(stack) < s.Op.Arity {
				return "", fmt.Errorf("rendering %q: missing operands for %s", p.String(), s.Op.Symbol)
			}
			switch s.Op.Arity {
			case 1:
				stack = append(stack, s.Op.Symbol+"("+pop()+")")
			case 2:
				first, second := pop(), pop()
				stack = append(stack, "("+second+" "+s.Op.Symbol+" "+first+")")
			default:
				return "", fmt.Errorf("rendering %q: unsupported arity %d", p.String(), s.Op.Arity)
			}
		}
	}

	if len(stack) != 1 {
		return "", fmt.Errorf("rendering %q: %d expressions left, expected 1", p.String(), len(stack))
	}
	return stack[0], nil
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Formula is a compiled program
type Formula struct {
	// Infix form with variable names
	Expression string

	source    string
	evaluable gval.Evaluable

	// Column index per referenced variable name
	columns map[string]int
}

// Compile renders and compiles p without caching
func Compile(p *pgp.Program) (*Formula, error) {
	source, err := render(p, func(v pgp.Variable) string { return identifier(v.Index) })
	if err != nil {
		return nil, err
	}
	return compile(p, source)
}

func compile(p *pgp.Program, source string) (*Formula, error) {
	expression, err := Render(p)
	if err != nil {
		return nil, err
	}

	evaluable, err := Language.NewEvaluable(source)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", expression, err)
	}

	columns := make(map[string]int)
	for _, symbol := range p.Symbols {
		if v, ok := symbol.(pgp.Variable); ok {
			columns[v.Name] = v.Index
		}
	}

	return &Formula{
		Expression: expression,
		source:     source,
		evaluable:  evaluable,
		columns:    columns,
	}, nil
}

// Variables returns the names of the referenced variables, sorted
func (f *Formula) Variables() []string {
	names := make([]string, 0, len(f.columns))
	for name := range f.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Formula) String() string {
	return f.Expression
}

// Eval computes the formula for one row of named values. Every referenced
// variable must be present.
func (f *Formula) Eval(row map[string]float64) (float64, error) {
	parameters := make(map[string]interface{}, len(f.columns))
	for name, index := range f.columns {
		v, ok := row[name]
		if !ok {
			return 0, fmt.Errorf("missing value for %q", name)
		}
		parameters[identifier(index)] = v
	}
	return f.eval(parameters)
}

// Predict computes the formula for every row of data
func (f *Formula) Predict(data pgp.Data) ([]float64, error) {
	columns := data.Rows
	if columns > 0 {
		columns = len(data.Values) / data.Rows
	}
	for name, index := range f.columns {
		if index >= columns {
			return nil, fmt.Errorf("variable %q references column %d of %d", name, index, columns)
		}
	}

	predicted := make([]float64, data.Rows)
	parameters := make(map[string]interface{}, len(f.columns))
	for row := range predicted {
		for _, index := range f.columns {
			parameters[identifier(index)] = data.At(index, row)
		}

		v, err := f.eval(parameters)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		predicted[row] = v
	}
	return predicted, nil
}

// ErrNotFinite is returned when a formula evaluates to NaN or ±Inf
var ErrNotFinite = errors.New("result is not finite")

func (f *Formula) eval(parameters map[string]interface{}) (float64, error) {
	v, err := f.evaluable.EvalFloat64(context.Background(), parameters)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v, fmt.Errorf("%s: %w", f.Expression, ErrNotFinite)
	}
	return v, nil
}
