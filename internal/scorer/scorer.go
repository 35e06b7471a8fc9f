// Package scorer loads model bundles and scores feature vectors.
// A bundle is the JSON artifact produced by the training pipeline and
// stored in the MLflow registry; it carries the classifier parameters,
// the fitted preprocessing state and serving metadata.
package scorer

import (
	"errors"
	"math"
)

// Model flavors supported by the bundle format.
const (
	FlavorLinear = "linear" // logistic regression
	FlavorGBDT   = "gbdt"   // gradient-boosted decision trees
)

// Scorer errors.
var (
	ErrUnknownFlavor     = errors.New("unknown model flavor")
	ErrDimensionMismatch = errors.New("feature vector length does not match model")
	ErrEmptyModel        = errors.New("model has no parameters")
)

// Scorer produces the probability of the positive class for a feature vector.
// Implementations are immutable after load and safe for concurrent use.
type Scorer interface {
	// Score returns P(approved) in [0,1].
	Score(x []float64) (float64, error)
	// Flavor identifies the model family.
	Flavor() string
	// NumFeatures is the expected feature vector length.
	NumFeatures() int
}

// sigmoid maps a raw margin to (0,1). The argument is clamped so the
// exponential never overflows.
func sigmoid(z float64) float64 {
	if z < -500 {
		z = -500
	} else if z > 500 {
		z = 500
	}
	return 1.0 / (1.0 + math.Exp(-z))
}
