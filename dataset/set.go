// Package dataset holds named numeric columns and converts them into the
// column-major layout the evolution engine reads.
package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/they4kman/experimentation/machine-learning/genetic-programming/pgp"
)

// Set is an ordered collection of equally long numeric columns
type Set struct {
	Name string

	names   []string
	index   map[string]int
	columns [][]float64
}

// New creates a Set from column names and values. The columns are not copied.
func New(names []string, columns [][]float64) (*Set, error) {
	if len(names) != len(columns) {
		return nil, fmt.Errorf("got %d names for %d columns", len(names), len(columns))
	}

	s := &Set{
		names:   make([]string, len(names)),
		index:   make(map[string]int, len(names)),
		columns: columns,
	}
	copy(s.names, names)

	for i, name := range names {
		if _, exists := s.index[name]; exists {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		if i > 0 && len(columns[i]) != len(columns[0]) {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", name, len(columns[i]), len(columns[0]))
		}
		s.index[name] = i
	}
	return s, nil
}

func (s *Set) Rows() int {
	if len(s.columns) == 0 {
		return 0
	}
	return len(s.columns[0])
}

func (s *Set) Names() []string {
	return s.names
}

func (s *Set) Column(name string) ([]float64, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.columns[i], true
}

// Subset returns count rows starting at start, sharing no storage with s
func (s *Set) Subset(start, count int) (*Set, error) {
	if start < 0 || count < 0 || start+count > s.Rows() {
		return nil, fmt.Errorf("rows [%d, %d) outside of %d rows", start, start+count, s.Rows())
	}

	columns := make([][]float64, len(s.columns))
	for i, column := range s.columns {
		columns[i] = append([]float64(nil), column[start:start+count]...)
	}

	subset, err := New(s.names, columns)
	if err != nil {
		return nil, err
	}
	subset.Name = s.Name
	return subset, nil
}

// Shuffle returns a copy of s with its rows in random order
func (s *Set) Shuffle(rng *rand.Rand) *Set {
	order := rng.Perm(s.Rows())

	columns := make([][]float64, len(s.columns))
	for i, column := range s.columns {
		shuffled := make([]float64, len(column))
		for k, row := range order {
			shuffled[k] = column[row]
		}
		columns[i] = shuffled
	}

	return &Set{
		Name:    s.Name,
		names:   s.names,
		index:   s.index,
		columns: columns,
	}
}

// Bounds returns the [min, max] of every column
func (s *Set) Bounds() map[string]pgp.Bounds {
	bounds := make(map[string]pgp.Bounds, len(s.names))
	for i, name := range s.names {
		b := pgp.Bounds{Min: math.Inf(1), Max: math.Inf(-1)}
		for _, v := range s.columns[i] {
			b.Min = math.Min(b.Min, v)
			b.Max = math.Max(b.Max, v)
		}
		if len(s.columns[i]) == 0 {
			b = pgp.Bounds{}
		}
		bounds[name] = b
	}
	return bounds
}

// Matrix lays out the named columns one after another, so that the value of
// the i-th named column in row r is at values[i*Rows()+r]. It also returns
// the column index of each name.
func (s *Set) Matrix(order []string) ([]float64, map[string]int, error) {
	rows := s.Rows()
	values := make([]float64, 0, len(order)*rows)
	indices := make(map[string]int, len(order))

	for _, name := range order {
		if _, dup := indices[name]; dup {
			continue
		}
		column, ok := s.Column(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown column %q", name)
		}
		indices[name] = len(values) / max(rows, 1)
		values = append(values, column...)
	}
	return values, indices, nil
}

// Data converts the inputs and target into the engine's view. The column
// indices match pgp.NewParams(inputs, target).
func (s *Set) Data(inputs []string, target string) (pgp.Data, map[string]int, error) {
	order := append(append([]string(nil), inputs...), target)
	values, indices, err := s.Matrix(order)
	if err != nil {
		return pgp.Data{}, nil, err
	}

	return pgp.Data{
		Values: values,
		Rows:   s.Rows(),
		Target: indices[target],
	}, indices, nil
}
