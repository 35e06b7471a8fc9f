// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/capserve/capserve/internal/model"
)

// BatchPredictRequest represents the request body for batch prediction.
type BatchPredictRequest struct {
	Applicants []model.Applicant `json:"applicants"`
}

// BatchPredictResponse wraps batch prediction results.
type BatchPredictResponse struct {
	Predictions []*model.Prediction `json:"predictions"`
	Count       int                 `json:"count"`
}

// ReloadModelResponse is returned by the reload-model endpoint.
type ReloadModelResponse struct {
	Reloaded bool             `json:"reloaded"`
	Model    *model.ModelInfo `json:"model"`
}

// PredictionListResponse represents a page of prediction audit records.
type PredictionListResponse struct {
	Data       []PredictionRecordResponse `json:"data"`
	Pagination *Pagination                `json:"pagination"`
}

// PredictionRecordResponse is a single audit record in API responses.
type PredictionRecordResponse struct {
	ID           string         `json:"prediction_id"`
	RequestID    string         `json:"request_id,omitempty"`
	Prediction   int            `json:"prediction"`
	Probability  float64        `json:"probability"`
	Decision     model.Decision `json:"decision"`
	ModelVersion string         `json:"model_version"`
	Cached       bool           `json:"cached"`
	LatencyMs    float64        `json:"latency_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Pagination carries offset-based pagination info.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ValidationErrorResponse carries per-field validation failures.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ToPredictionRecordResponse converts an audit record to its API shape.
func ToPredictionRecordResponse(rec *model.PredictionRecord) PredictionRecordResponse {
	return PredictionRecordResponse{
		ID:           rec.ID,
		RequestID:    rec.RequestID,
		Prediction:   rec.Label,
		Probability:  rec.Probability,
		Decision:     rec.Decision,
		ModelVersion: rec.ModelVersion,
		Cached:       rec.Cached,
		LatencyMs:    rec.LatencyMs,
		CreatedAt:    rec.CreatedAt,
	}
}

// ToPredictionListResponse converts a page of audit records.
func ToPredictionListResponse(records []*model.PredictionRecord, limit, offset int) *PredictionListResponse {
	responses := make([]PredictionRecordResponse, len(records))
	for i, rec := range records {
		responses[i] = ToPredictionRecordResponse(rec)
	}
	return &PredictionListResponse{
		Data: responses,
		Pagination: &Pagination{
			Limit:  limit,
			Offset: offset,
			Count:  len(responses),
		},
	}
}
