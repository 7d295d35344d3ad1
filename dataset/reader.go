package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Options control how delimited text is read into a Set
type Options struct {
	// Field separator. Defaults to ';'.
	Separator rune

	// Columns to keep, in order. All columns are kept when empty.
	Variables []string

	// Stop after this many data rows. Zero reads everything.
	Limit int
}

func (o Options) separator() rune {
	if o.Separator == 0 {
		return ';'
	}
	return o.Separator
}

// Read parses a header row of column names followed by rows of numbers
func Read(r io.Reader, opts Options) (*Set, error) {
	reader := csv.NewReader(r)
	reader.Comma = opts.separator()
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("missing header row")
	} else if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	names := make([]string, len(header))
	positions := make(map[string]int, len(header))
	for i, name := range header {
		names[i] = strings.TrimSpace(name)
		positions[names[i]] = i
	}

	keep := opts.Variables
	if len(keep) == 0 {
		keep = names
	}
	fields := make([]int, len(keep))
	for i, name := range keep {
		position, ok := positions[name]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		fields[i] = position
	}

	columns := make([][]float64, len(keep))
	for row := 1; opts.Limit == 0 || row <= opts.Limit; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", row, err)
		}

		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[field]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", row, keep[i], err)
			}
			columns[i] = append(columns[i], v)
		}
	}

	return New(keep, columns)
}

// ReadFile reads a Set from path and names it after the file
func ReadFile(path string, opts Options) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return s, nil
}

// Write stores s in the format Read expects
func Write(w io.Writer, s *Set, separator rune) error {
	writer := csv.NewWriter(w)
	if separator != 0 {
		writer.Comma = separator
	} else {
		writer.Comma = ';'
	}

	if err := writer.Write(s.names); err != nil {
		return err
	}

	record := make([]string, len(s.columns))
	for row := 0; row < s.Rows(); row++ {
		for i, column := range s.columns {
			record[i] = strconv.FormatFloat(column[row], 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
