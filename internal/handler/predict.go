package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/capserve/capserve/internal/handler/dto"
	"github.com/capserve/capserve/internal/middleware"
	"github.com/capserve/capserve/internal/model"
	"github.com/capserve/capserve/internal/service"
)

// Predictor is the scoring surface the HTTP layer depends on.
type Predictor interface {
	Predict(ctx context.Context, applicant *model.Applicant, requestID string) (*model.Prediction, error)
	PredictBatch(ctx context.Context, applicants []*model.Applicant, requestID string) ([]*model.Prediction, error)
	ReloadModel(ctx context.Context) (*model.ModelInfo, bool, error)
	ModelInfo() *model.ModelInfo
	Ready() bool
}

// PredictHandler handles scoring requests.
type PredictHandler struct {
	svc      Predictor
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPredictHandler creates a new PredictHandler.
func NewPredictHandler(svc Predictor, logger *slog.Logger) *PredictHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report violations under the JSON field name, not the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &PredictHandler{
		svc:      svc,
		validate: v,
		logger:   logger,
	}
}

// Predict handles POST /api/v1/predict.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var applicant model.Applicant
	if err := json.NewDecoder(r.Body).Decode(&applicant); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.validate.Struct(&applicant); err != nil {
		h.writeValidationError(w, err)
		return
	}

	requestID := middleware.GetRequestID(r.Context())

	pred, err := h.svc.Predict(r.Context(), &applicant, requestID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("prediction_served",
		"prediction_id", pred.ID,
		"decision", pred.Decision,
		"model_version", pred.ModelVersion,
		"cached", pred.Cached,
		"request_id", requestID,
	)

	writeJSON(w, http.StatusOK, pred)
}

// PredictBatch handles POST /api/v1/predict/batch.
func (h *PredictHandler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.BatchPredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if len(req.Applicants) == 0 {
		h.writeError(w, http.StatusBadRequest, "EMPTY_BATCH", "Batch must contain at least one applicant")
		return
	}

	applicants := make([]*model.Applicant, len(req.Applicants))
	for i := range req.Applicants {
		if err := h.validate.Struct(&req.Applicants[i]); err != nil {
			h.writeValidationError(w, err)
			return
		}
		applicants[i] = &req.Applicants[i]
	}

	requestID := middleware.GetRequestID(r.Context())

	preds, err := h.svc.PredictBatch(r.Context(), applicants, requestID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("batch_prediction_served",
		"count", len(preds),
		"model_version", preds[0].ModelVersion,
		"request_id", requestID,
	)

	writeJSON(w, http.StatusOK, dto.BatchPredictResponse{
		Predictions: preds,
		Count:       len(preds),
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *PredictHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrModelNotLoaded):
		h.writeError(w, http.StatusServiceUnavailable, "MODEL_NOT_LOADED", "No model is loaded; try again after a successful reload")
	case errors.Is(err, service.ErrBatchTooLarge):
		h.writeError(w, http.StatusBadRequest, "BATCH_TOO_LARGE", "Batch exceeds the maximum allowed size")
	default:
		h.logger.Error("internal_error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// writeValidationError maps validator failures to a 422 with per-field detail.
func (h *PredictHandler) writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		h.writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request failed validation")
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = "failed " + fe.Tag() + " validation"
	}

	writeJSON(w, http.StatusUnprocessableEntity, dto.ValidationErrorResponse{
		Error:  "Request failed validation",
		Code:   "VALIDATION_ERROR",
		Fields: fields,
	})
}

// writeError writes an error response.
func (h *PredictHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
