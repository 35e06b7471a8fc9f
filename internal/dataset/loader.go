package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/capserve/capserve/internal/model"
)

// Loader errors.
var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrNoRecords      = errors.New("no data records")
	ErrSingleClass    = errors.New("target column contains a single class")
)

// Summary describes a loaded dataset for logging and validation reporting.
type Summary struct {
	Rows         int
	Positive     int
	Negative     int
	EmptyColumns []string
	MissingCells int
}

// PositiveRate returns the share of approved examples.
func (s Summary) PositiveRate() float64 {
	if s.Rows == 0 {
		return 0
	}
	return float64(s.Positive) / float64(s.Rows)
}

// LoadCSV reads labeled training data. The header must contain every raw
// feature column plus the target column; column order is free.
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, true)
}

// LoadUnlabeledCSV reads applicant rows for batch scoring; the target column
// is optional and ignored when absent.
func LoadUnlabeledCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, false)
}

// ReadCSV parses applicant records from r. When labeled is true the target
// column is required and every row must carry a 0/1 label.
func ReadCSV(r io.Reader, labeled bool) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, col := range model.NumericColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	for _, col := range model.CategoricalColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	targetIdx, hasTarget := index[model.TargetColumn]
	if labeled && !hasTarget {
		missing = append(missing, model.TargetColumn)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		rec := Record{
			Numeric:     make([]float64, len(model.NumericColumns)),
			Categorical: make([]string, len(model.CategoricalColumns)),
			Label:       -1,
		}

		for i, col := range model.NumericColumns {
			cell := strings.TrimSpace(row[index[col]])
			if cell == "" {
				rec.Numeric[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, col, err)
			}
			rec.Numeric[i] = v
		}

		for i, col := range model.CategoricalColumns {
			rec.Categorical[i] = strings.TrimSpace(row[index[col]])
		}

		if hasTarget {
			cell := strings.TrimSpace(row[targetIdx])
			if cell == "" && !labeled {
				records = append(records, rec)
				continue
			}
			label, err := strconv.Atoi(cell)
			if err != nil || (label != 0 && label != 1) {
				return nil, fmt.Errorf("line %d: invalid target value %q", line, cell)
			}
			rec.Label = label
		}

		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// Validate checks dataset quality ahead of training and returns a summary.
func Validate(records []Record) (Summary, error) {
	s := Summary{Rows: len(records)}
	if len(records) == 0 {
		return s, ErrNoRecords
	}

	s.Negative, s.Positive = CountLabels(records)
	if s.Negative == 0 || s.Positive == 0 {
		return s, ErrSingleClass
	}

	// Completely empty feature columns are almost always an export bug.
	for i, col := range model.NumericColumns {
		empty := true
		for _, r := range records {
			if !IsMissing(r.Numeric[i]) {
				empty = false
			} else {
				s.MissingCells++
			}
		}
		if empty {
			s.EmptyColumns = append(s.EmptyColumns, col)
		}
	}
	for i, col := range model.CategoricalColumns {
		empty := true
		for _, r := range records {
			if r.Categorical[i] != "" {
				empty = false
			} else {
				s.MissingCells++
			}
		}
		if empty {
			s.EmptyColumns = append(s.EmptyColumns, col)
		}
	}

	return s, nil
}
