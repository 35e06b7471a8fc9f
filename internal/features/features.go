// Package features implements the fitted preprocessing pipeline shared by
// training and serving: imputation, derived features, one-hot encoding and
// scaling. A fitted Pipeline round-trips through the model bundle so the
// API transforms requests with exactly the parameters fitted at training time.
package features

import (
	"errors"
	"fmt"
	"sort"

	"github.com/capserve/capserve/internal/dataset"
	"github.com/capserve/capserve/internal/model"
)

// Imputation strategies for numeric columns.
const (
	ImputeMedian = "median"
	ImputeMean   = "mean"
)

// Scaling methods.
const (
	ScaleStandard = "standard"
	ScaleMinMax   = "minmax"
	ScaleRobust   = "robust"
)

// Pipeline errors.
var (
	ErrNotFitted     = errors.New("pipeline is not fitted")
	ErrEmptyColumn   = errors.New("column has no values to fit on")
	ErrUnknownMethod = errors.New("unknown preprocessing method")
)

// Config selects the fit-time strategies; zero values mean the defaults
// (median imputation, standard scaling).
type Config struct {
	NumericImpute string
	Scaling       string
}

func (c Config) withDefaults() Config {
	if c.NumericImpute == "" {
		c.NumericImpute = ImputeMedian
	}
	if c.Scaling == "" {
		c.Scaling = ScaleStandard
	}
	return c
}

// Derived feature names, appended after the raw columns.
var (
	derivedNumericNames     = []string{"credit_limit_per_card", "income_to_credit_ratio"}
	derivedCategoricalNames = []string{"age_group", "income_group", "credit_score_group"}
)

// Raw column indices used by derivations. Kept as constants so the
// derivation code stays in sync with model.NumericColumns.
const (
	colAge = iota
	colAnnualIncome
	colCreditScore
	_ // employment_years
	_ // debt_to_income_ratio
	colNumCards
	colCreditLimit
)

// Pipeline holds every parameter fitted on training data. All slices align
// with the canonical column orders (raw columns first, then derived).
type Pipeline struct {
	NumericImputeMethod string    `json:"numeric_impute_method"`
	Scaling             string    `json:"scaling"`
	NumericImpute       []float64 `json:"numeric_impute"`     // per raw numeric column
	CategoricalImpute   []string  `json:"categorical_impute"` // per raw categorical column

	// Categories per categorical feature (raw + derived), sorted. One-hot
	// encoding drops the first category; unseen values encode to all zeros.
	Categories [][]string `json:"categories"`

	// Final feature matrix layout and per-column scaling parameters.
	Columns []string  `json:"columns"`
	Center  []float64 `json:"center"`
	Scale   []float64 `json:"scale"`
}

// numericNames returns all numeric feature names (raw + derived).
func numericNames() []string {
	names := make([]string, 0, len(model.NumericColumns)+len(derivedNumericNames))
	names = append(names, model.NumericColumns...)
	return append(names, derivedNumericNames...)
}

// categoricalNames returns all categorical feature names (raw + derived).
func categoricalNames() []string {
	names := make([]string, 0, len(model.CategoricalColumns)+len(derivedCategoricalNames))
	names = append(names, model.CategoricalColumns...)
	return append(names, derivedCategoricalNames...)
}

// Fit learns imputation values, category vocabularies and scaling parameters
// from training records.
func Fit(records []dataset.Record, cfg Config) (*Pipeline, error) {
	if len(records) == 0 {
		return nil, dataset.ErrNoRecords
	}
	cfg = cfg.withDefaults()

	if cfg.NumericImpute != ImputeMedian && cfg.NumericImpute != ImputeMean {
		return nil, fmt.Errorf("%w: numeric impute %q", ErrUnknownMethod, cfg.NumericImpute)
	}
	if cfg.Scaling != ScaleStandard && cfg.Scaling != ScaleMinMax && cfg.Scaling != ScaleRobust {
		return nil, fmt.Errorf("%w: scaling %q", ErrUnknownMethod, cfg.Scaling)
	}

	p := &Pipeline{
		NumericImputeMethod: cfg.NumericImpute,
		Scaling:             cfg.Scaling,
	}

	// 1. Imputation parameters from the raw columns.
	numImpute, err := fitNumericImpute(records, cfg.NumericImpute)
	if err != nil {
		return nil, err
	}
	p.NumericImpute = numImpute

	catImpute, err := fitCategoricalImpute(records)
	if err != nil {
		return nil, err
	}
	p.CategoricalImpute = catImpute

	// 2. Impute and derive, collecting category vocabularies.
	numRows := make([][]float64, len(records))
	catRows := make([][]string, len(records))
	seen := make([]map[string]struct{}, len(categoricalNames()))
	for i := range seen {
		seen[i] = make(map[string]struct{})
	}

	for i, r := range records {
		num, cat := p.expand(r)
		numRows[i] = num
		catRows[i] = cat
		for j, v := range cat {
			if v != "" {
				seen[j][v] = struct{}{}
			}
		}
	}

	p.Categories = make([][]string, len(seen))
	for j, set := range seen {
		cats := make([]string, 0, len(set))
		for v := range set {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		p.Categories[j] = cats
	}

	p.Columns = p.buildColumns()

	// 3. Build the unscaled matrix and fit per-column scaling.
	matrix := make([][]float64, len(records))
	for i := range records {
		matrix[i] = p.encode(numRows[i], catRows[i])
	}

	if err := p.fitScaler(matrix); err != nil {
		return nil, err
	}

	return p, nil
}

// fitNumericImpute computes the fill value per raw numeric column.
func fitNumericImpute(records []dataset.Record, method string) ([]float64, error) {
	out := make([]float64, len(model.NumericColumns))
	for j, col := range model.NumericColumns {
		var values []float64
		for _, r := range records {
			if !dataset.IsMissing(r.Numeric[j]) {
				values = append(values, r.Numeric[j])
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyColumn, col)
		}
		if method == ImputeMean {
			out[j] = mean(values)
		} else {
			out[j] = median(values)
		}
	}
	return out, nil
}

// fitCategoricalImpute computes the most frequent value per raw categorical
// column. Frequency ties break lexicographically for determinism.
func fitCategoricalImpute(records []dataset.Record) ([]string, error) {
	out := make([]string, len(model.CategoricalColumns))
	for j, col := range model.CategoricalColumns {
		counts := make(map[string]int)
		for _, r := range records {
			if r.Categorical[j] != "" {
				counts[r.Categorical[j]]++
			}
		}
		if len(counts) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyColumn, col)
		}

		best, bestCount := "", -1
		for v, c := range counts {
			if c > bestCount || (c == bestCount && v < best) {
				best, bestCount = v, c
			}
		}
		out[j] = best
	}
	return out, nil
}

// buildColumns lays out the final feature matrix: numeric features first,
// then the drop-first one-hot columns per categorical feature.
func (p *Pipeline) buildColumns() []string {
	columns := append([]string{}, numericNames()...)
	catNames := categoricalNames()
	for j, cats := range p.Categories {
		for k, v := range cats {
			if k == 0 {
				continue // drop-first
			}
			columns = append(columns, catNames[j]+"_"+v)
		}
	}
	return columns
}

// fitScaler computes per-column center and scale over the unscaled matrix.
func (p *Pipeline) fitScaler(matrix [][]float64) error {
	if len(matrix) == 0 {
		return dataset.ErrNoRecords
	}

	cols := len(p.Columns)
	p.Center = make([]float64, cols)
	p.Scale = make([]float64, cols)

	column := make([]float64, len(matrix))
	for j := 0; j < cols; j++ {
		for i := range matrix {
			column[i] = matrix[i][j]
		}

		switch p.Scaling {
		case ScaleStandard:
			p.Center[j] = mean(column)
			p.Scale[j] = stddev(column, p.Center[j])
		case ScaleMinMax:
			lo, hi := minMax(column)
			p.Center[j] = lo
			p.Scale[j] = hi - lo
		case ScaleRobust:
			p.Center[j] = median(column)
			p.Scale[j] = quantile(column, 0.75) - quantile(column, 0.25)
		default:
			return fmt.Errorf("%w: scaling %q", ErrUnknownMethod, p.Scaling)
		}

		// Constant columns scale by 1 so they center to zero instead of NaN.
		if p.Scale[j] == 0 {
			p.Scale[j] = 1
		}
	}

	return nil
}

// FeatureNames returns the final feature matrix column names.
func (p *Pipeline) FeatureNames() []string {
	return append([]string{}, p.Columns...)
}
