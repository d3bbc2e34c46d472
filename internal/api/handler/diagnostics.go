package handler

import (
	"context"
	"net/http"
	"time"
)

// DiagnosticsHandler exposes path selection state to operators.
type DiagnosticsHandler struct {
	svc          MediaService
	probeTimeout time.Duration
}

// NewDiagnosticsHandler creates a diagnostics handler. probeTimeout bounds a
// forced conflict probe; zero means 30s.
func NewDiagnosticsHandler(svc MediaService, probeTimeout time.Duration) *DiagnosticsHandler {
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	return &DiagnosticsHandler{svc: svc, probeTimeout: probeTimeout}
}

// Get handles GET /api/v1/diagnostics. It reports cached state only.
func (h *DiagnosticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Diagnostics(r.Context()))
}

// Probe handles POST /api/v1/diagnostics/probe.
func (h *DiagnosticsHandler) Probe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.probeTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, h.svc.ReprobeConflict(ctx))
}
