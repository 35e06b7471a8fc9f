package audit

import (
	"testing"
	"time"
)

func TestValidateEventPayload(t *testing.T) {
	valid := EventPayload{
		ID:           "01J9ZK3A7V8W2X4Y6Z8A0B2C4E",
		RequestID:    "req-1",
		Applicant:    `{"age":35}`,
		Label:        1,
		Probability:  0.83,
		Decision:     "APPROVED",
		ModelVersion: "3",
		LatencyMs:    1.5,
		PredictedAt:  time.Now().UnixMilli(),
	}

	if err := ValidateEventPayload(valid); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*EventPayload)
	}{
		{"missing_id", func(p *EventPayload) { p.ID = "" }},
		{"missing_applicant", func(p *EventPayload) { p.Applicant = "" }},
		{"invalid_label", func(p *EventPayload) { p.Label = 2 }},
		{"probability_too_high", func(p *EventPayload) { p.Probability = 1.1 }},
		{"probability_negative", func(p *EventPayload) { p.Probability = -0.1 }},
		{"invalid_decision", func(p *EventPayload) { p.Decision = "MAYBE" }},
		{"missing_model_version", func(p *EventPayload) { p.ModelVersion = "" }},
		{"missing_predicted_at", func(p *EventPayload) { p.PredictedAt = 0 }},
	}

	for _, tc := range cases {
		payload := valid
		tc.mutate(&payload)
		if err := ValidateEventPayload(payload); err == nil {
			t.Fatalf("expected error for %s", tc.name)
		}
	}
}
