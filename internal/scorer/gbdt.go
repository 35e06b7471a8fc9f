package scorer

import "fmt"

// TreeNode is one node of a regression tree, stored in a flat array.
// Interior nodes route on x[Feature] < Threshold; leaves carry the output
// value (already scaled by the learning rate at training time).
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
}

// Tree is a single regression tree of the ensemble.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Predict walks the tree for one feature vector and returns the leaf value.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Validate checks node indices and feature references against numFeatures.
// A malformed tree would otherwise panic or loop during scoring.
func (t *Tree) Validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return ErrEmptyModel
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		// Children must point forward in the array; this guarantees traversal
		// terminates.
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

// GBDTModel is a gradient-boosted tree ensemble with a logistic link.
// Score = sigmoid(base + sum of tree outputs).
type GBDTModel struct {
	BaseScore    float64 `json:"base_score"` // prior, in log-odds
	FeatureCount int     `json:"num_features"`
	Trees        []Tree  `json:"trees"`
}

// Score returns the probability of the positive class.
func (m *GBDTModel) Score(x []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, ErrEmptyModel
	}
	if len(x) != m.FeatureCount {
		return 0, ErrDimensionMismatch
	}

	z := m.BaseScore
	for i := range m.Trees {
		z += m.Trees[i].Predict(x)
	}
	return sigmoid(z), nil
}

// Flavor identifies the model family.
func (m *GBDTModel) Flavor() string { return FlavorGBDT }

// NumFeatures is the expected feature vector length.
func (m *GBDTModel) NumFeatures() int { return m.FeatureCount }

// Validate checks every tree in the ensemble.
func (m *GBDTModel) Validate() error {
	if len(m.Trees) == 0 {
		return ErrEmptyModel
	}
	for i := range m.Trees {
		if err := m.Trees[i].Validate(m.FeatureCount); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
