// Package service provides business logic for the application.
package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/capserve/capserve/internal/audit"
	"github.com/capserve/capserve/internal/cache"
	"github.com/capserve/capserve/internal/features"
	"github.com/capserve/capserve/internal/metrics"
	"github.com/capserve/capserve/internal/model"
	"github.com/capserve/capserve/internal/registry"
	"github.com/capserve/capserve/internal/scorer"
	"github.com/capserve/capserve/internal/webhook"
)

// Service errors.
var (
	ErrModelNotLoaded = errors.New("no model loaded")
	ErrModelNotFound  = errors.New("model version not found in registry")
	ErrBatchTooLarge  = errors.New("batch exceeds maximum size")
)

// MaxBatchSize bounds a single batch prediction request.
const MaxBatchSize = 100

// loadedModel is the immutable serving state swapped in on each reload.
type loadedModel struct {
	scorer   scorer.Scorer
	pipeline *features.Pipeline
	meta     scorer.Metadata
	version  *registry.ModelVersion
	loadedAt time.Time
}

// PredictionService scores applicants with the currently loaded model and
// manages model loading from the MLflow registry. The active model is held
// behind an atomic pointer so predictions never block on a reload.
type PredictionService struct {
	registry   *registry.Client
	cache      *cache.Cache       // optional result cache
	audit      *audit.Publisher   // optional audit trail
	webhooks   *webhook.Publisher // optional lifecycle events
	logger     *slog.Logger
	metrics    metrics.Recorder
	modelName  string
	modelStage string
	cacheTTL   time.Duration

	maxBatchSize int

	current  atomic.Pointer[loadedModel]
	reloadMu sync.Mutex
}

// NewPredictionService creates a PredictionService. The cache, audit and
// webhook publishers may be nil; the corresponding side effects are skipped.
func NewPredictionService(reg *registry.Client, c *cache.Cache, auditPub *audit.Publisher, webhookPub *webhook.Publisher, modelName, modelStage string, cacheTTL time.Duration, logger *slog.Logger, recorder metrics.Recorder) *PredictionService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &PredictionService{
		registry:   reg,
		cache:      c,
		audit:      auditPub,
		webhooks:   webhookPub,
		logger:     logger.With("component", "service.prediction"),
		metrics:    recorder,
		modelName:  modelName,
		modelStage: modelStage,
		cacheTTL:   cacheTTL,

		maxBatchSize: MaxBatchSize,
	}
}

// SetMaxBatchSize overrides the default batch prediction bound.
func (s *PredictionService) SetMaxBatchSize(size int) {
	if size > 0 {
		s.maxBatchSize = size
	}
}

// ReloadModel fetches the latest version for the configured stage and swaps
// it in. It returns the resulting model info and whether the active model
// changed. When the registered version matches the loaded one, the reload is
// a no-op and the running model keeps serving.
func (s *PredictionService) ReloadModel(ctx context.Context) (*model.ModelInfo, bool, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	version, err := s.registry.GetLatestVersion(ctx, s.modelName, s.modelStage)
	if err != nil {
		s.recordLoadFailure(ctx, err)
		if errors.Is(err, registry.ErrModelNotFound) {
			return nil, false, ErrModelNotFound
		}
		return nil, false, fmt.Errorf("resolve model version: %w", err)
	}

	prev := s.current.Load()
	if prev != nil && prev.version.Version == version.Version {
		s.metrics.IncModelReload("noop")
		s.logger.Info("model reload no-op", "version", version.Version)
		return s.ModelInfo(), false, nil
	}

	data, err := s.registry.DownloadArtifact(ctx, version.RunID, scorer.BundleArtifactPath)
	if err != nil {
		s.recordLoadFailure(ctx, err)
		return nil, false, fmt.Errorf("download model bundle: %w", err)
	}

	bundle, err := scorer.ParseBundle(data)
	if err != nil {
		s.recordLoadFailure(ctx, err)
		return nil, false, fmt.Errorf("parse model bundle: %w", err)
	}

	pipeline, err := features.Load(bundle.Pipeline)
	if err != nil {
		s.recordLoadFailure(ctx, err)
		return nil, false, fmt.Errorf("load preprocessing pipeline: %w", err)
	}
	if got, want := len(pipeline.FeatureNames()), bundle.Scorer().NumFeatures(); got != want {
		err := fmt.Errorf("pipeline emits %d features, model expects %d", got, want)
		s.recordLoadFailure(ctx, err)
		return nil, false, err
	}

	s.current.Store(&loadedModel{
		scorer:   bundle.Scorer(),
		pipeline: pipeline,
		meta:     bundle.Metadata,
		version:  version,
		loadedAt: time.Now().UTC(),
	})

	s.metrics.IncModelReload("success")
	s.metrics.SetModelLoaded(true)

	// Version-scoped keys make stale entries unreachable; flushing just
	// reclaims the memory early.
	if s.cache != nil {
		if err := s.cache.FlushPredictions(ctx); err != nil {
			s.logger.Warn("failed to flush prediction cache", "error", err)
		}
	}

	previousVersion := ""
	if prev != nil {
		previousVersion = prev.version.Version
	}
	s.publishModelEvent(ctx, &model.ModelEvent{
		ID:              webhook.NewEventID(),
		Type:            model.EventTypeModelReloaded,
		ModelName:       s.modelName,
		Stage:           s.modelStage,
		Version:         version.Version,
		PreviousVersion: previousVersion,
		RunID:           version.RunID,
		OccurredAt:      time.Now().UTC(),
	})

	s.logger.Info("model loaded",
		"model", s.modelName,
		"stage", s.modelStage,
		"version", version.Version,
		"previous_version", previousVersion,
		"flavor", bundle.Metadata.Flavor,
	)

	return s.ModelInfo(), true, nil
}

// recordLoadFailure emits metrics and a lifecycle event for a failed load.
// A previously loaded model keeps serving.
func (s *PredictionService) recordLoadFailure(ctx context.Context, cause error) {
	s.metrics.IncModelReload("failed")
	if s.current.Load() == nil {
		s.metrics.SetModelLoaded(false)
	}
	s.logger.Error("model load failed", "model", s.modelName, "stage", s.modelStage, "error", cause)

	s.publishModelEvent(ctx, &model.ModelEvent{
		ID:         webhook.NewEventID(),
		Type:       model.EventTypeModelLoadFailed,
		ModelName:  s.modelName,
		Stage:      s.modelStage,
		Error:      cause.Error(),
		OccurredAt: time.Now().UTC(),
	})
}

func (s *PredictionService) publishModelEvent(ctx context.Context, event *model.ModelEvent) {
	if s.webhooks == nil {
		return
	}
	if err := s.webhooks.PublishModelEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish model event", "event_type", event.Type, "error", err)
	}
}

// ModelInfo describes the active model. Loaded is false when no model has
// been loaded yet.
func (s *PredictionService) ModelInfo() *model.ModelInfo {
	m := s.current.Load()
	if m == nil {
		return &model.ModelInfo{
			Name:  s.modelName,
			Stage: s.modelStage,
		}
	}
	return &model.ModelInfo{
		Name:      s.modelName,
		Stage:     s.modelStage,
		Version:   m.version.Version,
		RunID:     m.version.RunID,
		Flavor:    m.meta.Flavor,
		Threshold: m.meta.Threshold,
		Loaded:    true,
		LoadedAt:  m.loadedAt,
	}
}

// Ready reports whether the service can serve predictions.
func (s *PredictionService) Ready() bool {
	return s.current.Load() != nil
}

// Predict scores one applicant. Results are cached per model version, so an
// identical applicant within the TTL is served without re-scoring.
// This is the hot path.
func (s *PredictionService) Predict(ctx context.Context, applicant *model.Applicant, requestID string) (*model.Prediction, error) {
	m := s.current.Load()
	if m == nil {
		return nil, ErrModelNotLoaded
	}
	return s.predictWithModel(ctx, m, applicant, requestID)
}

// predictWithModel scores one applicant against a fixed model snapshot.
func (s *PredictionService) predictWithModel(ctx context.Context, m *loadedModel, applicant *model.Applicant, requestID string) (*model.Prediction, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObservePredictionDuration(time.Since(start))
	}()

	cacheKey := ""
	if s.cache != nil {
		key, err := cache.PredictionKey(m.version.Version, applicant)
		if err == nil {
			cacheKey = key
			if cached, err := s.cache.GetPrediction(ctx, key); err == nil {
				s.metrics.IncPredictionCacheHit()
				s.metrics.IncPrediction(string(cached.Decision))
				cached.Cached = true
				s.publishAudit(applicant, cached, requestID, time.Since(start))
				return cached, nil
			} else if errors.Is(err, cache.ErrCacheMiss) {
				s.metrics.IncPredictionCacheMiss()
			} else {
				// Redis error, fall through to scoring
				s.logger.Warn("prediction cache lookup failed", "error", err)
			}
		}
	}

	x, err := m.pipeline.TransformApplicant(applicant)
	if err != nil {
		return nil, fmt.Errorf("preprocess applicant: %w", err)
	}
	p, err := m.scorer.Score(x)
	if err != nil {
		return nil, fmt.Errorf("score applicant: %w", err)
	}

	label := 0
	if p >= m.meta.Threshold {
		label = 1
	}
	confidence := p
	if confidence < 0.5 {
		confidence = 1 - confidence
	}

	pred := &model.Prediction{
		ID:           newPredictionID(),
		Label:        label,
		Probability:  p,
		Decision:     model.DecisionForLabel(label),
		Confidence:   confidence,
		ModelVersion: m.version.Version,
		CreatedAt:    time.Now().UTC(),
	}

	if s.cache != nil && cacheKey != "" {
		if err := s.cache.SetPrediction(ctx, cacheKey, pred, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache prediction", "error", err)
		}
	}

	s.metrics.IncPrediction(string(pred.Decision))
	s.publishAudit(applicant, pred, requestID, time.Since(start))

	return pred, nil
}

// PredictBatch scores a batch of applicants in order. The model snapshot is
// taken once, so every record in the batch scores against the same version
// even if a reload lands mid-batch. Scoring stops at the first failure so
// partial results are never returned.
func (s *PredictionService) PredictBatch(ctx context.Context, applicants []*model.Applicant, requestID string) ([]*model.Prediction, error) {
	if len(applicants) > s.maxBatchSize {
		return nil, ErrBatchTooLarge
	}
	m := s.current.Load()
	if m == nil {
		return nil, ErrModelNotLoaded
	}

	predictions := make([]*model.Prediction, len(applicants))
	for i, a := range applicants {
		pred, err := s.predictWithModel(ctx, m, a, requestID)
		if err != nil {
			return nil, fmt.Errorf("applicant %d: %w", i, err)
		}
		predictions[i] = pred
	}
	return predictions, nil
}

// publishAudit enqueues the prediction to the audit stream. Fire and forget.
func (s *PredictionService) publishAudit(applicant *model.Applicant, pred *model.Prediction, requestID string, latency time.Duration) {
	if s.audit == nil {
		return
	}

	raw, err := json.Marshal(applicant)
	if err != nil {
		s.logger.Warn("failed to encode applicant for audit", "error", err)
		return
	}

	s.audit.PublishAsync(audit.EventPayload{
		ID:           pred.ID,
		RequestID:    requestID,
		Applicant:    string(raw),
		Label:        pred.Label,
		Probability:  pred.Probability,
		Decision:     string(pred.Decision),
		ModelVersion: pred.ModelVersion,
		Cached:       pred.Cached,
		LatencyMs:    float64(latency.Microseconds()) / 1000.0,
		PredictedAt:  pred.CreatedAt.UnixMilli(),
	})
}

// newPredictionID generates a time-sortable prediction ID.
func newPredictionID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
