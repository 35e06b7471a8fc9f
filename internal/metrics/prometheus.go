package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder on a Prometheus registry.
type PrometheusRecorder struct {
	predictions        *prometheus.CounterVec
	predictionCache    *prometheus.CounterVec
	predictionDuration prometheus.Histogram
	modelReloads       *prometheus.CounterVec
	modelLoaded        prometheus.Gauge
	auditPublished     *prometheus.CounterVec
	auditProcessed     *prometheus.CounterVec
	auditBatchSize     prometheus.Histogram
	auditBatchDuration prometheus.Histogram
	auditQueueDepth    prometheus.Gauge
	webhookDeliveries  *prometheus.CounterVec
	webhookDuration    prometheus.Histogram
	webhookQueueDepth  prometheus.Gauge
}

// NewPrometheus returns a Recorder registered on the given registerer. Pass
// prometheus.DefaultRegisterer for normal operation.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capserve_predictions_total",
			Help: "Total number of predictions served, by decision",
		}, []string{"decision"}),
		predictionCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capserve_prediction_cache_total",
			Help: "Prediction cache lookups, by result",
		}, []string{"result"}),
		predictionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "capserve_prediction_duration_seconds",
			Help:    "Time spent scoring one applicant",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		modelReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capserve_model_reloads_total",
			Help: "Model reload attempts, by outcome",
		}, []string{"status"}),
		modelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "capserve_model_loaded",
			Help: "Whether a model is currently loaded (1) or not (0)",
		}),
		auditPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capserve_audit_events_published_total",
			Help: "Audit events published to the pipeline, by status",
		}, []string{"status"}),
		auditProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capserve_audit_events_processed_total",
			Help: "Audit events written to storage, by status",
		}, []string{"status"}),
		auditBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "capserve_audit_batch_size",
			Help:    "Number of audit events per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		auditBatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "capserve_audit_batch_duration_seconds",
			Help:    "Time spent flushing one audit batch",
			Buckets: prometheus.DefBuckets,
		}),
		auditQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "capserve_audit_queue_depth",
			Help: "Audit events waiting in the buffer",
		}),
		webhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capserve_webhook_deliveries_total",
			Help: "Webhook delivery attempts, by outcome",
		}, []string{"status"}),
		webhookDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "capserve_webhook_delivery_duration_seconds",
			Help:    "Time spent on one webhook delivery attempt",
			Buckets: prometheus.DefBuckets,
		}),
		webhookQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "capserve_webhook_queue_depth",
			Help: "Webhook deliveries waiting for an attempt",
		}),
	}
}

// IncPrediction counts one served prediction.
func (p *PrometheusRecorder) IncPrediction(decision string) {
	p.predictions.WithLabelValues(decision).Inc()
}

// IncPredictionCacheHit counts a cache hit.
func (p *PrometheusRecorder) IncPredictionCacheHit() {
	p.predictionCache.WithLabelValues("hit").Inc()
}

// IncPredictionCacheMiss counts a cache miss.
func (p *PrometheusRecorder) IncPredictionCacheMiss() {
	p.predictionCache.WithLabelValues("miss").Inc()
}

// ObservePredictionDuration records scoring latency.
func (p *PrometheusRecorder) ObservePredictionDuration(duration time.Duration) {
	p.predictionDuration.Observe(duration.Seconds())
}

// IncModelReload counts one reload attempt.
func (p *PrometheusRecorder) IncModelReload(status string) {
	p.modelReloads.WithLabelValues(status).Inc()
}

// SetModelLoaded sets the loaded gauge.
func (p *PrometheusRecorder) SetModelLoaded(loaded bool) {
	if loaded {
		p.modelLoaded.Set(1)
		return
	}
	p.modelLoaded.Set(0)
}

// IncAuditEventPublished counts an event entering the pipeline.
func (p *PrometheusRecorder) IncAuditEventPublished(status string) {
	p.auditPublished.WithLabelValues(status).Inc()
}

// IncAuditEventProcessed counts an event leaving the pipeline.
func (p *PrometheusRecorder) IncAuditEventProcessed(status string) {
	p.auditProcessed.WithLabelValues(status).Inc()
}

// ObserveAuditBatchSize records the size of a flushed batch.
func (p *PrometheusRecorder) ObserveAuditBatchSize(size int) {
	p.auditBatchSize.Observe(float64(size))
}

// ObserveAuditBatchDuration records the time to flush a batch.
func (p *PrometheusRecorder) ObserveAuditBatchDuration(duration time.Duration) {
	p.auditBatchDuration.Observe(duration.Seconds())
}

// SetAuditQueueDepth sets the buffer depth gauge.
func (p *PrometheusRecorder) SetAuditQueueDepth(depth int64) {
	p.auditQueueDepth.Set(float64(depth))
}

// IncWebhookDelivery counts one delivery attempt.
func (p *PrometheusRecorder) IncWebhookDelivery(status string) {
	p.webhookDeliveries.WithLabelValues(status).Inc()
}

// ObserveWebhookDeliveryDuration records the wall time of one attempt.
func (p *PrometheusRecorder) ObserveWebhookDeliveryDuration(duration time.Duration) {
	p.webhookDuration.Observe(duration.Seconds())
}

// SetWebhookQueueDepth sets the pending delivery gauge.
func (p *PrometheusRecorder) SetWebhookQueueDepth(depth int64) {
	p.webhookQueueDepth.Set(float64(depth))
}
