package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/getgoodtape/videoproc/internal/repository"
)

// UsageHandler reports proxy usage and estimated cost from the usage log.
type UsageHandler struct {
	repo  repository.UsageRepository
	clock clock.Clock
}

// NewUsageHandler creates a usage handler. A nil clock uses wall time.
func NewUsageHandler(repo repository.UsageRepository, clk clock.Clock) *UsageHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &UsageHandler{repo: repo, clock: clk}
}

// Get handles GET /api/v1/usage?day=YYYY-MM-DD or ?month=YYYY-MM.
// Without either parameter it reports the current UTC day.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || !h.repo.Enabled() {
		writeError(w, http.StatusNotFound, "usage log is disabled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	if month := q.Get("month"); month != "" {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		stats, err := h.repo.MonthlyStats(ctx, t)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read usage")
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	day := h.clock.Now().UTC()
	if s := q.Get("day"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = t
	}
	stats, err := h.repo.DailyStats(ctx, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read usage")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
