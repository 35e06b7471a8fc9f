// Package audit provides prediction audit-trail capture and processing.
// Predictions are pushed to a Redis stream on the serving path and drained
// into PostgreSQL by a background worker.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capserve/capserve/internal/metrics"
)

const (
	// StreamKey is the Redis stream for prediction audit events.
	StreamKey = "stream:predictions"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:predictions:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// EventPayload is the compressed audit event format for the Redis stream.
type EventPayload struct {
	ID           string  `json:"id"`            // prediction ULID
	RequestID    string  `json:"rid,omitempty"` // request correlation ID
	Applicant    string  `json:"a"`             // raw applicant JSON
	Label        int     `json:"p"`             // predicted class
	Probability  float64 `json:"pr"`            // P(approved)
	Decision     string  `json:"d"`             // APPROVED / REJECTED
	ModelVersion string  `json:"mv"`
	Cached       bool    `json:"c,omitempty"`
	LatencyMs    float64 `json:"lm"`
	PredictedAt  int64   `json:"t"` // Unix milliseconds
}

// Publisher enqueues audit events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new audit event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "audit.publisher"),
		metrics: recorder,
	}
}

// Publish adds an audit event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event EventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event EventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish audit event",
				"prediction_id", event.ID,
				"error", err,
			)
			p.metrics.IncAuditEventPublished("dropped")
			return
		}

		p.logger.Debug("audit event published",
			"prediction_id", event.ID,
			"stream_id", streamID,
		)
		p.metrics.IncAuditEventPublished("success")
	}()
}
