package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/store"
	"github.com/dukerupert/rota/internal/workload"
)

type OccurrenceHandler struct {
	families    *store.FamilyStore
	occurrences *store.OccurrenceStore
	logger      *slog.Logger
	now         func() time.Time
}

func NewOccurrenceHandler(families *store.FamilyStore, occurrences *store.OccurrenceStore, logger *slog.Logger) *OccurrenceHandler {
	return &OccurrenceHandler{families: families, occurrences: occurrences, logger: logger, now: time.Now}
}

// List returns a family's occurrences due in [from, to). Both bounds are
// dates in the family timezone; the default range is the current week.
func (h *OccurrenceHandler) List(w http.ResponseWriter, r *http.Request) {
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

	loc := family.Location()
	q := r.URL.Query()
	var from time.Time
	if q.Get("from") == "" {
		from = workload.WeekStart(h.now().In(loc))
	} else if from, err = parseDate(q.Get("from"), loc, h.now()); err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to := from.AddDate(0, 0, 7)
	if q.Get("to") != "" {
		if to, err = parseDate(q.Get("to"), loc, h.now()); err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	occs, err := h.occurrences.ListOccurrences(r.Context(), id, from, to)
	if err != nil {
		h.logger.Error("list occurrences", "family_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list occurrences")
		return
	}
	if occs == nil {
		occs = []model.TaskOccurrence{}
	}
	writeJSON(w, http.StatusOK, occs)
}
