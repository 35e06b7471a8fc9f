package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/capserve/capserve/internal/auth"
	"github.com/capserve/capserve/internal/handler/dto"
	"github.com/capserve/capserve/internal/middleware"
	"github.com/capserve/capserve/internal/registry"
	"github.com/capserve/capserve/internal/service"
)

// ModelHandler handles model lifecycle endpoints.
type ModelHandler struct {
	svc    Predictor
	logger *slog.Logger
}

// NewModelHandler creates a new ModelHandler.
func NewModelHandler(svc Predictor, logger *slog.Logger) *ModelHandler {
	return &ModelHandler{
		svc:    svc,
		logger: logger,
	}
}

// Reload handles POST /api/v1/reload-model.
// On failure the previously loaded model keeps serving.
func (h *ModelHandler) Reload(w http.ResponseWriter, r *http.Request) {
	info, reloaded, err := h.svc.ReloadModel(r.Context())
	if err != nil {
		h.handleReloadError(w, r, err)
		return
	}

	keyPrefix, _ := auth.AdminFromContext(r.Context())
	h.logger.Info("model_reload_requested",
		"reloaded", reloaded,
		"model_version", info.Version,
		"admin_key_prefix", keyPrefix,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusOK, dto.ReloadModelResponse{
		Reloaded: reloaded,
		Model:    info,
	})
}

// Info handles GET /api/v1/model-info.
func (h *ModelHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ModelInfo())
}

// handleReloadError maps reload failures to HTTP responses.
func (h *ModelHandler) handleReloadError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	switch {
	case errors.Is(err, service.ErrModelNotFound):
		h.logger.Warn("model_reload_failed",
			"reason", "model_not_found",
			"request_id", requestID,
		)
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{
			Error: "No registered model version found for the configured name and stage",
			Code:  "MODEL_NOT_FOUND",
		})
	case errors.Is(err, registry.ErrUnavailable):
		h.logger.Error("model_reload_failed",
			"reason", "registry_unavailable",
			"error", err,
			"request_id", requestID,
		)
		writeJSON(w, http.StatusBadGateway, dto.ErrorResponse{
			Error: "Model registry is unreachable",
			Code:  "REGISTRY_UNAVAILABLE",
		})
	default:
		h.logger.Error("model_reload_failed",
			"error", err,
			"request_id", requestID,
		)
		writeJSON(w, http.StatusBadGateway, dto.ErrorResponse{
			Error: "Failed to load model from registry",
			Code:  "MODEL_LOAD_FAILED",
		})
	}
}
