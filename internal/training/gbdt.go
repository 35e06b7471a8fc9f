package training

import (
	"fmt"
	"math"
	"sort"

	"github.com/capserve/capserve/internal/scorer"
)

// GBDTConfig configures gradient boosting on logistic loss.
// Zero values select the defaults.
type GBDTConfig struct {
	Trees          int     // default 100
	MaxDepth       int     // default 3
	LearningRate   float64 // default 0.1
	MinSamplesLeaf int     // default 5
}

func (c GBDTConfig) withDefaults() GBDTConfig {
	if c.Trees == 0 {
		c.Trees = 100
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 3
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.1
	}
	if c.MinSamplesLeaf == 0 {
		c.MinSamplesLeaf = 5
	}
	return c
}

// TrainGBDT fits a gradient-boosted tree ensemble. Each round fits a
// depth-limited regression tree to the logistic-loss gradients, with leaf
// values from a single Newton step scaled by the learning rate.
func TrainGBDT(X [][]float64, y []int, cfg GBDTConfig) (*scorer.GBDTModel, error) {
	if len(X) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(X), len(y))
	}
	cfg = cfg.withDefaults()

	n := len(X)
	dims := len(X[0])

	// Prior in log-odds; degenerate datasets are rejected by dataset.Validate
	// upstream but guard anyway.
	pos := 0
	for _, label := range y {
		pos += label
	}
	if pos == 0 || pos == n {
		return nil, fmt.Errorf("%w: all labels identical", ErrNoTrainingData)
	}
	base := math.Log(float64(pos) / float64(n-pos))

	margin := make([]float64, n) // current raw prediction per row
	for i := range margin {
		margin[i] = base
	}

	grad := make([]float64, n) // residual y - p
	hess := make([]float64, n) // p * (1 - p)
	rows := make([]int, n)

	m := &scorer.GBDTModel{BaseScore: base, FeatureCount: dims}

	for round := 0; round < cfg.Trees; round++ {
		for i := 0; i < n; i++ {
			p := 1.0 / (1.0 + math.Exp(-clamp(margin[i])))
			grad[i] = float64(y[i]) - p
			hess[i] = p * (1 - p)
		}

		for i := range rows {
			rows[i] = i
		}

		b := &treeBuilder{
			X: X, grad: grad, hess: hess,
			maxDepth:       cfg.MaxDepth,
			minSamplesLeaf: cfg.MinSamplesLeaf,
			learningRate:   cfg.LearningRate,
		}
		b.build(rows, 0)
		tree := scorer.Tree{Nodes: b.nodes}

		for i := 0; i < n; i++ {
			margin[i] += tree.Predict(X[i])
		}
		m.Trees = append(m.Trees, tree)
	}

	return m, nil
}

// treeBuilder grows one regression tree in flat-array form, children always
// appended after their parent so scorer.Tree validation holds.
type treeBuilder struct {
	X          [][]float64
	grad, hess []float64

	maxDepth       int
	minSamplesLeaf int
	learningRate   float64

	nodes []scorer.TreeNode
}

// build appends the subtree for rows and returns its root index.
func (b *treeBuilder) build(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, scorer.TreeNode{})

	if depth >= b.maxDepth || len(rows) < 2*b.minSamplesLeaf {
		b.nodes[idx] = b.leaf(rows)
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		b.nodes[idx] = b.leaf(rows)
		return idx
	}

	var left, right []int
	for _, i := range rows {
		if b.X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	b.nodes[idx] = scorer.TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      leftIdx,
		Right:     rightIdx,
	}
	return idx
}

// leaf computes the Newton-step output for a leaf: sum(g) / sum(h), scaled
// by the learning rate.
func (b *treeBuilder) leaf(rows []int) scorer.TreeNode {
	var g, h float64
	for _, i := range rows {
		g += b.grad[i]
		h += b.hess[i]
	}
	value := 0.0
	if h > 1e-12 {
		value = b.learningRate * g / h
	}
	return scorer.TreeNode{Leaf: true, Value: value}
}

// bestSplit scans every feature for the split maximizing the gradient
// variance gain. Candidate thresholds are midpoints between consecutive
// distinct feature values.
func (b *treeBuilder) bestSplit(rows []int) (int, float64, bool) {
	var totalG, totalH float64
	for _, i := range rows {
		totalG += b.grad[i]
		totalH += b.hess[i]
	}
	if totalH < 1e-12 {
		return 0, 0, false
	}
	baseScore := totalG * totalG / totalH

	bestGain := 1e-9
	bestFeature, bestThreshold := -1, 0.0

	dims := len(b.X[rows[0]])
	sorted := make([]int, len(rows))

	for f := 0; f < dims; f++ {
		copy(sorted, rows)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var leftG, leftH float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			leftG += b.grad[i]
			leftH += b.hess[i]

			cur, next := b.X[i][f], b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			if k+1 < b.minSamplesLeaf || len(sorted)-k-1 < b.minSamplesLeaf {
				continue
			}

			rightG := totalG - leftG
			rightH := totalH - leftH
			if leftH < 1e-12 || rightH < 1e-12 {
				continue
			}

			gain := leftG*leftG/leftH + rightG*rightG/rightH - baseScore
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}
