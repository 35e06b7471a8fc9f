// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Prediction metrics
	IncPrediction(decision string) // decision: "APPROVED" or "REJECTED"
	IncPredictionCacheHit()
	IncPredictionCacheMiss()
	ObservePredictionDuration(duration time.Duration)

	// Model lifecycle metrics
	IncModelReload(status string) // status: "success", "failed", "noop"
	SetModelLoaded(loaded bool)

	// Audit pipeline metrics
	IncAuditEventPublished(status string) // status: "success" or "dropped"
	IncAuditEventProcessed(status string) // status: "success", "failed"
	ObserveAuditBatchSize(size int)
	ObserveAuditBatchDuration(duration time.Duration)
	SetAuditQueueDepth(depth int64)

	// Webhook delivery metrics
	IncWebhookDelivery(status string) // status: "delivered", "failed", "exhausted"
	ObserveWebhookDeliveryDuration(duration time.Duration)
	SetWebhookQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
