// Package model defines domain entities for the application.
package model

import "time"

// Decision represents the outcome of a credit approval prediction.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// DecisionForLabel maps a class label to a decision.
// Label 1 = good credit -> APPROVED, label 0 = bad credit -> REJECTED.
func DecisionForLabel(label int) Decision {
	if label == 1 {
		return DecisionApproved
	}
	return DecisionRejected
}

// Prediction is the result of scoring a single applicant.
type Prediction struct {
	ID           string    `json:"prediction_id"` // ULID (time-sortable)
	Label        int       `json:"prediction"`    // 1 = approved, 0 = rejected
	Probability  float64   `json:"probability"`   // P(approved), in [0,1]
	Decision     Decision  `json:"decision"`
	Confidence   float64   `json:"confidence"` // max(p, 1-p), in [0.5,1]
	ModelVersion string    `json:"model_version"`
	Cached       bool      `json:"-"` // Served from the result cache
	CreatedAt    time.Time `json:"created_at"`
}

// ModelInfo describes the currently loaded model.
type ModelInfo struct {
	Name      string    `json:"name"`
	Stage     string    `json:"stage"`
	Version   string    `json:"version"`
	RunID     string    `json:"run_id"`
	Flavor    string    `json:"flavor"`
	Threshold float64   `json:"threshold"`
	Loaded    bool      `json:"loaded"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// PredictionRecord is the audit-trail row persisted for each prediction.
// The raw applicant payload is stored as JSON for later analysis.
type PredictionRecord struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id,omitempty"`
	ApplicantJSON string    `json:"applicant"`
	Label         int       `json:"prediction"`
	Probability   float64   `json:"probability"`
	Decision      Decision  `json:"decision"`
	ModelVersion  string    `json:"model_version"`
	Cached        bool      `json:"cached"`
	LatencyMs     float64   `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}
