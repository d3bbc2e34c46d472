package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/service"
)

// MediaService is the part of the service layer the HTTP API calls.
type MediaService interface {
	Validate(ctx context.Context, rawURL string) service.ValidateResult
	Convert(ctx context.Context, req service.ConvertRequest) service.ConvertResult
	Diagnostics(ctx context.Context) service.Diagnostics
	ReprobeConflict(ctx context.Context) conflict.State
}

// MediaHandler handles validate and convert requests.
type MediaHandler struct {
	svc    MediaService
	logger *slog.Logger
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(svc MediaService, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		svc:    svc,
		logger: logger.With("component", "media_handler"),
	}
}

// ValidateRequest is the JSON body of POST /api/v1/validate.
type ValidateRequest struct {
	URL string `json:"url"`
}

// Validate handles POST /api/v1/validate. Lookup failures are reported in
// the body with status 200.
func (h *MediaHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res := h.svc.Validate(r.Context(), req.URL)
	if !res.Valid {
		h.logger.Info("validate failed", "url", req.URL, "error_type", res.ErrorType, "attempts", len(res.AttemptedPaths))
	}
	writeJSON(w, http.StatusOK, res)
}

// Convert handles POST /api/v1/convert. Conversion failures are reported in
// the body with status 200.
func (h *MediaHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req service.ConvertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res := h.svc.Convert(r.Context(), req)
	if !res.Success {
		h.logger.Info("convert failed", "url", req.URL, "format", req.Format, "error_type", res.ErrorType, "attempts", len(res.AttemptedPaths))
	}
	writeJSON(w, http.StatusOK, res)
}
