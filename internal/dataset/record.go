// Package dataset loads, validates and splits credit application data.
package dataset

import (
	"math"

	"github.com/capserve/capserve/internal/model"
)

// Record is one raw training example. Numeric values align with
// model.NumericColumns (NaN marks a missing cell) and categorical values
// align with model.CategoricalColumns ("" marks a missing cell).
type Record struct {
	Numeric     []float64
	Categorical []string
	Label       int // 1 = approved, 0 = rejected, -1 = unlabeled
}

// FromApplicant converts a validated API applicant into a record.
// API input is fully validated, so nothing is missing.
func FromApplicant(a *model.Applicant) Record {
	return Record{
		Numeric:     a.Numeric(),
		Categorical: a.Categorical(),
		Label:       -1,
	}
}

// IsMissing reports whether a numeric cell is missing.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Labels extracts the label column from a set of records.
func Labels(records []Record) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.Label
	}
	return out
}

// CountLabels returns the number of negative and positive examples.
func CountLabels(records []Record) (neg, pos int) {
	for _, r := range records {
		switch r.Label {
		case 0:
			neg++
		case 1:
			pos++
		}
	}
	return neg, pos
}
