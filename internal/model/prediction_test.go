package model

import "testing"

func TestDecisionForLabel(t *testing.T) {
	t.Parallel()

	if got := DecisionForLabel(1); got != DecisionApproved {
		t.Errorf("DecisionForLabel(1) = %s, want APPROVED", got)
	}
	if got := DecisionForLabel(0); got != DecisionRejected {
		t.Errorf("DecisionForLabel(0) = %s, want REJECTED", got)
	}
	// Anything that is not the positive class is a rejection.
	if got := DecisionForLabel(2); got != DecisionRejected {
		t.Errorf("DecisionForLabel(2) = %s, want REJECTED", got)
	}
}

func TestWebhookEndpoint_SubscribesToEvent(t *testing.T) {
	t.Parallel()

	e := &WebhookEndpoint{
		Enabled:    true,
		EventTypes: []EventType{EventTypeModelReloaded},
	}

	if !e.SubscribesToEvent(EventTypeModelReloaded) {
		t.Error("expected subscription to model.reloaded")
	}
	if e.SubscribesToEvent(EventTypeModelLoadFailed) {
		t.Error("did not expect subscription to model.load_failed")
	}
	if !e.IsActive() {
		t.Error("expected endpoint to be active")
	}
}

func TestWebhookDelivery_CanRetry(t *testing.T) {
	t.Parallel()

	d := &WebhookDelivery{
		Status:       DeliveryStatusFailed,
		AttemptCount: 2,
		MaxAttempts:  5,
	}
	if !d.CanRetry() {
		t.Error("expected delivery to be retryable")
	}

	d.AttemptCount = 5
	if d.CanRetry() {
		t.Error("expected exhausted delivery to not be retryable")
	}

	d.Status = DeliveryStatusSuccess
	if !d.IsTerminal() {
		t.Error("expected success to be terminal")
	}
}
