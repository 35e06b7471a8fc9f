package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/capserve/capserve/internal/model"
)

// PredictionRepository provides database access for the prediction audit trail.
type PredictionRepository struct {
	repo *Repository
}

// NewPredictionRepository creates a new PredictionRepository.
func NewPredictionRepository(repo *Repository) *PredictionRepository {
	return &PredictionRepository{repo: repo}
}

// BulkInsert inserts multiple audit records with idempotency via ON CONFLICT DO NOTHING.
func (r *PredictionRepository) BulkInsert(ctx context.Context, records []*model.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO predictions (
			id, request_id, applicant, prediction, probability, decision,
			model_version, cached, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	for _, rec := range records {
		batch.Queue(query,
			rec.ID,
			nullableString(rec.RequestID),
			rec.ApplicantJSON,
			rec.Label,
			rec.Probability,
			string(rec.Decision),
			rec.ModelVersion,
			rec.Cached,
			rec.LatencyMs,
			rec.CreatedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(records); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert record %d: %w", i, err)
		}
	}

	return nil
}

// ListFilter narrows a prediction listing.
type ListFilter struct {
	Decision     model.Decision // empty means all decisions
	ModelVersion string         // empty means all versions
	Limit        int
	Offset       int
}

// List returns audit records newest first.
func (r *PredictionRepository) List(ctx context.Context, filter ListFilter) ([]*model.PredictionRecord, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}

	query := `
		SELECT id, COALESCE(request_id, ''), applicant, prediction, probability,
		       decision, model_version, cached, latency_ms, created_at
		FROM predictions
		WHERE ($1 = '' OR decision = $1)
		  AND ($2 = '' OR model_version = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.repo.pool.Query(ctx, query,
		string(filter.Decision), filter.ModelVersion, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var records []*model.PredictionRecord
	for rows.Next() {
		rec := &model.PredictionRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.ApplicantJSON,
			&rec.Label,
			&rec.Probability,
			&rec.Decision,
			&rec.ModelVersion,
			&rec.Cached,
			&rec.LatencyMs,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}

	return records, nil
}

// Stats summarizes the audit trail for one model version, or for all
// versions when modelVersion is empty.
type Stats struct {
	Total          int64   `json:"total"`
	Approved       int64   `json:"approved"`
	Rejected       int64   `json:"rejected"`
	CacheHits      int64   `json:"cache_hits"`
	AvgProbability float64 `json:"avg_probability"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}

// GetStats aggregates prediction counts and averages.
func (r *PredictionRepository) GetStats(ctx context.Context, modelVersion string) (*Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE decision = 'APPROVED'),
			COUNT(*) FILTER (WHERE decision = 'REJECTED'),
			COUNT(*) FILTER (WHERE cached),
			COALESCE(AVG(probability), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM predictions
		WHERE ($1 = '' OR model_version = $1)
	`

	s := &Stats{}
	err := r.repo.pool.QueryRow(ctx, query, modelVersion).Scan(
		&s.Total, &s.Approved, &s.Rejected, &s.CacheHits,
		&s.AvgProbability, &s.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("prediction stats: %w", err)
	}
	return s, nil
}

// nullableString converts an empty string to nil for nullable columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
