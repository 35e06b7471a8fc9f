package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	PredictionsApproved       uint64
	PredictionsRejected       uint64
	PredictionCacheHits       uint64
	PredictionCacheMisses     uint64
	PredictionDurationCount   uint64
	PredictionDurationTotalNs int64
	ModelReloadSuccesses      uint64
	ModelReloadFailures       uint64
	ModelLoaded               bool
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	predictionsApproved       uint64
	predictionsRejected       uint64
	predictionCacheHits       uint64
	predictionCacheMisses     uint64
	predictionDurationCount   uint64
	predictionDurationTotalNs int64
	modelReloadSuccesses      uint64
	modelReloadFailures       uint64
	modelLoaded               atomic.Bool
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		PredictionsApproved:       atomic.LoadUint64(&m.predictionsApproved),
		PredictionsRejected:       atomic.LoadUint64(&m.predictionsRejected),
		PredictionCacheHits:       atomic.LoadUint64(&m.predictionCacheHits),
		PredictionCacheMisses:     atomic.LoadUint64(&m.predictionCacheMisses),
		PredictionDurationCount:   atomic.LoadUint64(&m.predictionDurationCount),
		PredictionDurationTotalNs: atomic.LoadInt64(&m.predictionDurationTotalNs),
		ModelReloadSuccesses:      atomic.LoadUint64(&m.modelReloadSuccesses),
		ModelReloadFailures:       atomic.LoadUint64(&m.modelReloadFailures),
		ModelLoaded:               m.modelLoaded.Load(),
	}
}

// IncPrediction increments the counter for the decision.
func (m *InMemoryRecorder) IncPrediction(decision string) {
	if decision == "APPROVED" {
		atomic.AddUint64(&m.predictionsApproved, 1)
		return
	}
	atomic.AddUint64(&m.predictionsRejected, 1)
}

// IncPredictionCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncPredictionCacheHit() {
	atomic.AddUint64(&m.predictionCacheHits, 1)
}

// IncPredictionCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncPredictionCacheMiss() {
	atomic.AddUint64(&m.predictionCacheMisses, 1)
}

// ObservePredictionDuration records prediction latency.
func (m *InMemoryRecorder) ObservePredictionDuration(duration time.Duration) {
	atomic.AddUint64(&m.predictionDurationCount, 1)
	atomic.AddInt64(&m.predictionDurationTotalNs, duration.Nanoseconds())
}

// IncModelReload counts one reload attempt by outcome.
func (m *InMemoryRecorder) IncModelReload(status string) {
	if status == "failed" {
		atomic.AddUint64(&m.modelReloadFailures, 1)
		return
	}
	atomic.AddUint64(&m.modelReloadSuccesses, 1)
}

// SetModelLoaded records whether a model is currently active.
func (m *InMemoryRecorder) SetModelLoaded(loaded bool) {
	m.modelLoaded.Store(loaded)
}

// IncAuditEventPublished is not tracked in memory.
func (m *InMemoryRecorder) IncAuditEventPublished(status string) {}

// IncAuditEventProcessed is not tracked in memory.
func (m *InMemoryRecorder) IncAuditEventProcessed(status string) {}

// ObserveAuditBatchSize is not tracked in memory.
func (m *InMemoryRecorder) ObserveAuditBatchSize(size int) {}

// ObserveAuditBatchDuration is not tracked in memory.
func (m *InMemoryRecorder) ObserveAuditBatchDuration(duration time.Duration) {}

// SetAuditQueueDepth is not tracked in memory.
func (m *InMemoryRecorder) SetAuditQueueDepth(depth int64) {}

// IncWebhookDelivery is not tracked in memory.
func (m *InMemoryRecorder) IncWebhookDelivery(status string) {}

// ObserveWebhookDeliveryDuration is not tracked in memory.
func (m *InMemoryRecorder) ObserveWebhookDeliveryDuration(duration time.Duration) {}

// SetWebhookQueueDepth is not tracked in memory.
func (m *InMemoryRecorder) SetWebhookQueueDepth(depth int64) {}
