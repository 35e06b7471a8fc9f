package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/capserve/capserve/internal/handler/dto"
	"github.com/capserve/capserve/internal/model"
	"github.com/capserve/capserve/internal/repository"
)

// PredictionsHandler serves the prediction audit trail.
type PredictionsHandler struct {
	repo   *repository.PredictionRepository
	logger *slog.Logger
}

// NewPredictionsHandler creates a new PredictionsHandler.
func NewPredictionsHandler(repo *repository.PredictionRepository, logger *slog.Logger) *PredictionsHandler {
	return &PredictionsHandler{
		repo:   repo,
		logger: logger,
	}
}

// List handles GET /api/v1/predictions.
func (h *PredictionsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 100
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	offset := 0
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	filter := repository.ListFilter{
		ModelVersion: query.Get("model_version"),
		Limit:        limit,
		Offset:       offset,
	}

	if d := query.Get("decision"); d != "" {
		decision := model.Decision(strings.ToUpper(d))
		if decision != model.DecisionApproved && decision != model.DecisionRejected {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error: "Decision filter must be APPROVED or REJECTED",
				Code:  "INVALID_DECISION",
			})
			return
		}
		filter.Decision = decision
	}

	records, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list predictions", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{
			Error: "Failed to list predictions",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	writeJSON(w, http.StatusOK, dto.ToPredictionListResponse(records, limit, offset))
}

// Stats handles GET /api/v1/predictions/stats.
func (h *PredictionsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetStats(r.Context(), r.URL.Query().Get("model_version"))
	if err != nil {
		h.logger.Error("failed to aggregate prediction stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{
			Error: "Failed to aggregate prediction stats",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
