// Package training fits credit approval classifiers and evaluates them.
// It produces the scorer models that the serving path loads from the
// registry; training never happens inside the API process.
package training

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/capserve/capserve/internal/scorer"
)

// Training errors.
var (
	ErrNoTrainingData = errors.New("no training data")
	ErrShapeMismatch  = errors.New("feature matrix and labels have different lengths")
)

// LogisticConfig configures gradient-descent logistic regression.
// Zero values select the defaults.
type LogisticConfig struct {
	LearningRate float64 // default 0.1
	Epochs       int     // default 200
	BatchSize    int     // default 32
	L2           float64 // default 1e-3
	// BalanceClasses weights examples inversely to class frequency,
	// mirroring the class-weight handling of the original pipeline.
	BalanceClasses bool
	Seed           int64
}

func (c LogisticConfig) withDefaults() LogisticConfig {
	if c.LearningRate == 0 {
		c.LearningRate = 0.1
	}
	if c.Epochs == 0 {
		c.Epochs = 200
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.L2 == 0 {
		c.L2 = 1e-3
	}
	return c
}

// TrainLogistic fits a logistic regression model with mini-batch gradient
// descent on the preprocessed feature matrix.
func TrainLogistic(X [][]float64, y []int, cfg LogisticConfig) (*scorer.LinearModel, error) {
	if len(X) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(X), len(y))
	}
	cfg = cfg.withDefaults()

	dims := len(X[0])
	weights := make([]float64, dims)
	bias := 0.0

	classWeights := map[int]float64{0: 1, 1: 1}
	if cfg.BalanceClasses {
		classWeights = ClassWeights(y)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	gradW := make([]float64, dims)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < len(order); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := order[start:end]

			for j := range gradW {
				gradW[j] = 0
			}
			gradB := 0.0

			for _, i := range batch {
				z := bias
				for j, w := range weights {
					z += w * X[i][j]
				}
				p := 1.0 / (1.0 + math.Exp(-clamp(z)))
				// Weighted logistic loss gradient: w_c * (p - y).
				g := classWeights[y[i]] * (p - float64(y[i]))
				for j := range gradW {
					gradW[j] += g * X[i][j]
				}
				gradB += g
			}

			scale := cfg.LearningRate / float64(len(batch))
			for j := range weights {
				weights[j] -= scale * (gradW[j] + cfg.L2*weights[j])
			}
			bias -= scale * gradB
		}
	}

	return &scorer.LinearModel{Weights: weights, Bias: bias}, nil
}

// ClassWeights computes inverse-frequency class weights:
// total / (classes * count).
func ClassWeights(y []int) map[int]float64 {
	counts := map[int]int{}
	for _, label := range y {
		counts[label]++
	}

	weights := make(map[int]float64, len(counts))
	total := float64(len(y))
	classes := float64(len(counts))
	for label, count := range counts {
		weights[label] = total / (classes * float64(count))
	}
	return weights
}

func clamp(z float64) float64 {
	if z < -500 {
		return -500
	}
	if z > 500 {
		return 500
	}
	return z
}
