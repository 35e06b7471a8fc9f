package scorer

// LinearModel is a logistic regression classifier.
// Score = sigmoid(w.x + b) over the preprocessed feature vector.
type LinearModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Score returns the probability of the positive class.
func (m *LinearModel) Score(x []float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, ErrEmptyModel
	}
	if len(x) != len(m.Weights) {
		return 0, ErrDimensionMismatch
	}

	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return sigmoid(z), nil
}

// Flavor identifies the model family.
func (m *LinearModel) Flavor() string { return FlavorLinear }

// NumFeatures is the expected feature vector length.
func (m *LinearModel) NumFeatures() int { return len(m.Weights) }
