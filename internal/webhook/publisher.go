package webhook

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/capserve/capserve/internal/model"
)

// Publisher creates webhook delivery records when model lifecycle events occur.
type Publisher struct {
	repo   *Repository
	logger *slog.Logger
}

// NewPublisher creates a new webhook publisher.
func NewPublisher(repo *Repository, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "webhook.publisher"),
	}
}

// PublishModelEvent fans a model lifecycle event out to all active endpoints
// subscribed to its type. One delivery row is created per endpoint; the
// (endpoint, event) pair is unique, so re-publishing the same event is safe.
func (p *Publisher) PublishModelEvent(ctx context.Context, event *model.ModelEvent) error {
	endpoints, err := p.repo.ListActiveEndpointsByEvent(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("list active endpoints: %w", err)
	}

	if len(endpoints) == 0 {
		return nil // No webhooks configured
	}

	// Build payload once, reuse for all endpoints
	payload := model.WebhookPayload{
		EventType: string(event.Type),
		EventID:   event.ID,
		Timestamp: event.OccurredAt,
		Data: map[string]any{
			"model_name":       event.ModelName,
			"stage":            event.Stage,
			"version":          event.Version,
			"previous_version": event.PreviousVersion,
			"run_id":           event.RunID,
			"error":            event.Error,
		},
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Create delivery for each endpoint
	now := time.Now()
	for _, endpoint := range endpoints {
		delivery := &model.WebhookDelivery{
			ID:           newDeliveryID(now),
			EndpointID:   endpoint.ID,
			EventID:      event.ID,
			EventType:    event.Type,
			PayloadJSON:  string(payloadJSON),
			Status:       model.DeliveryStatusPending,
			AttemptCount: 0,
			MaxAttempts:  DefaultMaxAttempts,
			NextRetryAt:  now, // Immediate delivery
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := p.repo.CreateDelivery(ctx, delivery); err != nil {
			p.logger.Warn("failed to create delivery",
				"endpoint_id", endpoint.ID,
				"event_id", event.ID,
				"error", err,
			)
			// Continue with other endpoints
			continue
		}

		p.logger.Debug("webhook delivery created",
			"delivery_id", delivery.ID,
			"endpoint_id", endpoint.ID,
			"event_type", event.Type,
			"event_id", event.ID,
		)
	}

	return nil
}

// NewEventID generates a ULID for a model lifecycle event. The ID doubles as
// the idempotency key for delivery fan-out.
func NewEventID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func newDeliveryID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
