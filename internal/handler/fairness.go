package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/rota/internal/fairness"
	"github.com/dukerupert/rota/internal/store"
	"github.com/dukerupert/rota/internal/workload"
)

// ScoreSink receives every fairness score the API computes.
type ScoreSink interface {
	FairnessScored(familyID int64, score float64)
}

type FairnessHandler struct {
	families *store.FamilyStore
	scorer   *fairness.Scorer
	sink     ScoreSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewFairnessHandler builds the fairness report handler. sink may be nil.
func NewFairnessHandler(families *store.FamilyStore, scorer *fairness.Scorer, sink ScoreSink, logger *slog.Logger) *FairnessHandler {
	return &FairnessHandler{families: families, scorer: scorer, sink: sink, logger: logger, now: time.Now}
}

// Report returns per-member loads and the family fairness score for the
// week containing ?week= (default: the current week in the family timezone).
func (h *FairnessHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid family id")
		return
	}

	family, err := h.families.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get family", "family_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load family")
		return
	}
	if family == nil {
		writeError(w, http.StatusNotFound, "family not found")
		return
	}

	day, err := parseDate(r.URL.Query().Get("week"), family.Location(), h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "week must be YYYY-MM-DD")
		return
	}

	report, err := h.scorer.Report(r.Context(), id, workload.WeekStart(day))
	if err != nil {
		h.logger.Error("fairness report", "family_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute fairness")
		return
	}
	if h.sink != nil {
		h.sink.FairnessScored(id, report.Score)
	}
	writeJSON(w, http.StatusOK, report)
}
