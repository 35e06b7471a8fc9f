package features

import (
	"encoding/json"
	"fmt"

	"github.com/capserve/capserve/internal/dataset"
	"github.com/capserve/capserve/internal/model"
)

// expand imputes a raw record and appends the derived features.
// Returned slices align with numericNames() and categoricalNames().
func (p *Pipeline) expand(r dataset.Record) ([]float64, []string) {
	num := make([]float64, 0, len(numericNames()))
	for j := range model.NumericColumns {
		v := r.Numeric[j]
		if dataset.IsMissing(v) {
			v = p.NumericImpute[j]
		}
		num = append(num, v)
	}

	cat := make([]string, 0, len(categoricalNames()))
	for j := range model.CategoricalColumns {
		v := r.Categorical[j]
		if v == "" {
			v = p.CategoricalImpute[j]
		}
		cat = append(cat, v)
	}

	// Derived numeric features.
	num = append(num,
		num[colCreditLimit]/(num[colNumCards]+1),     // credit_limit_per_card
		num[colAnnualIncome]/(num[colCreditLimit]+1), // income_to_credit_ratio
	)

	// Derived categorical features (bucketized numerics).
	cat = append(cat,
		bucket(num[colAge], ageEdges, ageLabels),
		bucket(num[colAnnualIncome], incomeEdges, incomeLabels),
		bucket(num[colCreditScore], creditScoreEdges, creditScoreLabels),
	)

	return num, cat
}

// Bucket edges and labels for the derived group features. Intervals are
// half-open (lo, hi]; values outside the outermost edges encode to zeros.
var (
	ageEdges  = []float64{0, 25, 35, 50, 100}
	ageLabels = []string{"young", "adult", "middle_age", "senior"}

	incomeEdges  = []float64{0, 30000, 60000, 100000}
	incomeLabels = []string{"low", "medium", "high", "very_high"} // last bucket unbounded

	creditScoreEdges  = []float64{0, 580, 670, 740, 800, 850}
	creditScoreLabels = []string{"poor", "fair", "good", "very_good", "excellent"}
)

// bucket assigns v to a label. When len(labels) == len(edges) the last
// bucket is unbounded above.
func bucket(v float64, edges []float64, labels []string) string {
	if v <= edges[0] {
		return ""
	}
	for i := 1; i < len(edges); i++ {
		if v <= edges[i] {
			return labels[i-1]
		}
	}
	if len(labels) == len(edges) {
		return labels[len(labels)-1]
	}
	return ""
}

// encode one-hot encodes the categorical features and concatenates them
// after the numeric features. Unseen categories and dropped first
// categories contribute zeros.
func (p *Pipeline) encode(num []float64, cat []string) []float64 {
	row := make([]float64, 0, len(p.Columns))
	row = append(row, num...)

	for j, cats := range p.Categories {
		for k, v := range cats {
			if k == 0 {
				continue // drop-first
			}
			if cat[j] == v {
				row = append(row, 1)
			} else {
				row = append(row, 0)
			}
		}
	}
	return row
}

// TransformRecord preprocesses one record into a scaled feature vector.
func (p *Pipeline) TransformRecord(r dataset.Record) ([]float64, error) {
	if len(p.Columns) == 0 || len(p.Scale) != len(p.Columns) {
		return nil, ErrNotFitted
	}
	if len(r.Numeric) != len(model.NumericColumns) || len(r.Categorical) != len(model.CategoricalColumns) {
		return nil, fmt.Errorf("record has %d numeric and %d categorical values, want %d and %d",
			len(r.Numeric), len(r.Categorical), len(model.NumericColumns), len(model.CategoricalColumns))
	}

	num, cat := p.expand(r)
	row := p.encode(num, cat)
	for j := range row {
		row[j] = (row[j] - p.Center[j]) / p.Scale[j]
	}
	return row, nil
}

// Transform preprocesses a batch of records.
func (p *Pipeline) Transform(records []dataset.Record) ([][]float64, error) {
	out := make([][]float64, len(records))
	for i, r := range records {
		row, err := p.TransformRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}

// TransformApplicant preprocesses a validated API request.
func (p *Pipeline) TransformApplicant(a *model.Applicant) ([]float64, error) {
	return p.TransformRecord(dataset.FromApplicant(a))
}

// Encode serializes the fitted pipeline for the model bundle.
func (p *Pipeline) Encode() (json.RawMessage, error) {
	if len(p.Columns) == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(p)
}

// Load decodes a fitted pipeline from a model bundle section.
func Load(raw json.RawMessage) (*Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}

	if len(p.Columns) == 0 || len(p.Center) != len(p.Columns) || len(p.Scale) != len(p.Columns) {
		return nil, ErrNotFitted
	}
	if len(p.NumericImpute) != len(model.NumericColumns) {
		return nil, fmt.Errorf("pipeline has %d numeric impute values, want %d",
			len(p.NumericImpute), len(model.NumericColumns))
	}
	if len(p.CategoricalImpute) != len(model.CategoricalColumns) {
		return nil, fmt.Errorf("pipeline has %d categorical impute values, want %d",
			len(p.CategoricalImpute), len(model.CategoricalColumns))
	}
	if len(p.Categories) != len(categoricalNames()) {
		return nil, fmt.Errorf("pipeline has %d category vocabularies, want %d",
			len(p.Categories), len(categoricalNames()))
	}

	// The category vocabularies must account for exactly the columns the
	// pipeline declares, or encode produces rows of the wrong width.
	width := len(numericNames())
	for _, cats := range p.Categories {
		if len(cats) > 1 {
			width += len(cats) - 1 // drop-first
		}
	}
	if width != len(p.Columns) {
		return nil, fmt.Errorf("pipeline encodes %d features but declares %d columns",
			width, len(p.Columns))
	}

	return &p, nil
}
