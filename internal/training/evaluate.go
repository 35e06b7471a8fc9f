package training

import (
	"math"
	"sort"
)

// Metrics summarizes binary classification quality at one decision threshold.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	ROCAUC    float64 `json:"roc_auc"`

	TruePositives  int `json:"true_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

// Evaluate computes classification metrics for predicted probabilities
// against true labels at the given threshold.
func Evaluate(probs []float64, y []int, threshold float64) Metrics {
	var m Metrics
	for i, p := range probs {
		pred := 0
		if p >= threshold {
			pred = 1
		}
		switch {
		case pred == 1 && y[i] == 1:
			m.TruePositives++
		case pred == 0 && y[i] == 0:
			m.TrueNegatives++
		case pred == 1 && y[i] == 0:
			m.FalsePositives++
		default:
			m.FalseNegatives++
		}
	}

	total := len(probs)
	if total > 0 {
		m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	if m.TruePositives+m.FalsePositives > 0 {
		m.Precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		m.Recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.ROCAUC = ROCAUC(probs, y)
	return m
}

// ROCAUC computes the area under the ROC curve via the rank-sum formulation.
// Tied probabilities contribute their average rank. Returns 0.5 when either
// class is absent.
func ROCAUC(probs []float64, y []int) float64 {
	n := len(probs)
	pos := 0
	for _, label := range y {
		pos += label
	}
	neg := n - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return probs[order[a]] < probs[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && probs[order[j]] == probs[order[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		i = j
	}

	var rankSum float64
	for i, label := range y {
		if label == 1 {
			rankSum += ranks[i]
		}
	}
	return (rankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}

// ThresholdMetrics holds metrics at one candidate threshold of a sweep.
type ThresholdMetrics struct {
	Threshold float64 `json:"threshold"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// SweepThresholds evaluates precision, recall and F1 at evenly spaced
// thresholds from 0.05 to 0.95.
func SweepThresholds(probs []float64, y []int) []ThresholdMetrics {
	var out []ThresholdMetrics
	for t := 0.05; t < 0.96; t += 0.05 {
		m := Evaluate(probs, y, t)
		out = append(out, ThresholdMetrics{
			Threshold: math.Round(t*100) / 100,
			Precision: m.Precision,
			Recall:    m.Recall,
			F1:        m.F1,
		})
	}
	return out
}

// OptimalThreshold returns the threshold from the sweep with the highest F1.
// Falls back to 0.5 when no threshold produces a positive F1.
func OptimalThreshold(probs []float64, y []int) float64 {
	best, bestF1 := 0.5, 0.0
	for _, tm := range SweepThresholds(probs, y) {
		if tm.F1 > bestF1 {
			bestF1 = tm.F1
			best = tm.Threshold
		}
	}
	return best
}
