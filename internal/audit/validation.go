package audit

import "fmt"

const maxApplicantLength = 8192

// ValidateEventPayload validates audit event payload fields.
func ValidateEventPayload(payload EventPayload) error {
	if payload.ID == "" {
		return fmt.Errorf("id is required")
	}
	if payload.Applicant == "" {
		return fmt.Errorf("applicant is required")
	}
	if len(payload.Applicant) > maxApplicantLength {
		return fmt.Errorf("applicant too long")
	}
	if payload.Label != 0 && payload.Label != 1 {
		return fmt.Errorf("prediction must be 0 or 1")
	}
	if payload.Probability < 0 || payload.Probability > 1 {
		return fmt.Errorf("probability out of range")
	}
	if payload.Decision != "APPROVED" && payload.Decision != "REJECTED" {
		return fmt.Errorf("invalid decision %q", payload.Decision)
	}
	if payload.ModelVersion == "" {
		return fmt.Errorf("model_version is required")
	}
	if payload.PredictedAt <= 0 {
		return fmt.Errorf("predicted_at must be set")
	}
	return nil
}
