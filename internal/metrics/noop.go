package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncPrediction is a no-op.
func (n *NoopRecorder) IncPrediction(decision string) {}

// IncPredictionCacheHit is a no-op.
func (n *NoopRecorder) IncPredictionCacheHit() {}

// IncPredictionCacheMiss is a no-op.
func (n *NoopRecorder) IncPredictionCacheMiss() {}

// ObservePredictionDuration is a no-op.
func (n *NoopRecorder) ObservePredictionDuration(duration time.Duration) {}

// IncModelReload is a no-op.
func (n *NoopRecorder) IncModelReload(status string) {}

// SetModelLoaded is a no-op.
func (n *NoopRecorder) SetModelLoaded(loaded bool) {}

// IncAuditEventPublished is a no-op.
func (n *NoopRecorder) IncAuditEventPublished(status string) {}

// IncAuditEventProcessed is a no-op.
func (n *NoopRecorder) IncAuditEventProcessed(status string) {}

// ObserveAuditBatchSize is a no-op.
func (n *NoopRecorder) ObserveAuditBatchSize(size int) {}

// ObserveAuditBatchDuration is a no-op.
func (n *NoopRecorder) ObserveAuditBatchDuration(duration time.Duration) {}

// SetAuditQueueDepth is a no-op.
func (n *NoopRecorder) SetAuditQueueDepth(depth int64) {}

// IncWebhookDelivery is a no-op.
func (n *NoopRecorder) IncWebhookDelivery(status string) {}

// ObserveWebhookDeliveryDuration is a no-op.
func (n *NoopRecorder) ObserveWebhookDeliveryDuration(duration time.Duration) {}

// SetWebhookQueueDepth is a no-op.
func (n *NoopRecorder) SetWebhookQueueDepth(depth int64) {}
