package dto

import (
	"time"

	"github.com/capserve/capserve/internal/model"
)

// WebhookEndpointCreateRequest is the request body for registering an endpoint.
type WebhookEndpointCreateRequest struct {
	TargetURL   string            `json:"target_url"`
	EventTypes  []model.EventType `json:"event_types,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
}

// WebhookEndpointUpdateRequest is the request body for updating an endpoint.
// Nil fields are left unchanged.
type WebhookEndpointUpdateRequest struct {
	TargetURL   *string            `json:"target_url,omitempty"`
	EventTypes  *[]model.EventType `json:"event_types,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
}

// WebhookEndpointResponse is an endpoint in API responses. The signing
// secret is never included; see WebhookEndpointCreateResponse.
type WebhookEndpointResponse struct {
	ID          string            `json:"id"`
	TargetURL   string            `json:"target_url"`
	Enabled     bool              `json:"enabled"`
	EventTypes  []model.EventType `json:"event_types"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// WebhookEndpointCreateResponse includes the signing secret.
// The secret is only returned at creation time.
type WebhookEndpointCreateResponse struct {
	WebhookEndpointResponse
	Secret string `json:"secret"`
}

// WebhookDeliveryResponse is a delivery attempt record in API responses.
type WebhookDeliveryResponse struct {
	ID             string               `json:"id"`
	EndpointID     string               `json:"endpoint_id"`
	EventID        string               `json:"event_id"`
	EventType      model.EventType      `json:"event_type"`
	Status         model.DeliveryStatus `json:"status"`
	AttemptCount   int                  `json:"attempt_count"`
	MaxAttempts    int                  `json:"max_attempts"`
	NextRetryAt    *time.Time           `json:"next_retry_at,omitempty"`
	LastAttemptAt  *time.Time           `json:"last_attempt_at,omitempty"`
	LastHTTPStatus *int                 `json:"last_http_status,omitempty"`
	LastError      string               `json:"last_error,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// ToWebhookEndpointResponse converts an endpoint to its API shape.
func ToWebhookEndpointResponse(ep *model.WebhookEndpoint) WebhookEndpointResponse {
	return WebhookEndpointResponse{
		ID:          ep.ID,
		TargetURL:   ep.TargetURL,
		Enabled:     ep.Enabled,
		EventTypes:  ep.EventTypes,
		Name:        ep.Name,
		Description: ep.Description,
		CreatedAt:   ep.CreatedAt,
		UpdatedAt:   ep.UpdatedAt,
	}
}

// ToWebhookDeliveryResponse converts a delivery to its API shape.
func ToWebhookDeliveryResponse(d *model.WebhookDelivery) WebhookDeliveryResponse {
	resp := WebhookDeliveryResponse{
		ID:             d.ID,
		EndpointID:     d.EndpointID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Status:         d.Status,
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		LastAttemptAt:  d.LastAttemptAt,
		LastHTTPStatus: d.LastHTTPStatus,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
	}
	if !d.NextRetryAt.IsZero() {
		resp.NextRetryAt = &d.NextRetryAt
	}
	return resp
}
