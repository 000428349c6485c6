package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/rota/internal/availability"
	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/store"
)

type AvailabilityHandler struct {
	families *store.FamilyStore
	members  *store.FamilyMemberStore
	finder   *availability.Finder
	logger   *slog.Logger
	now      func() time.Time
}

func NewAvailabilityHandler(families *store.FamilyStore, members *store.FamilyMemberStore, finder *availability.Finder, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{families: families, members: members, finder: finder, logger: logger, now: time.Now}
}

type slotsQuery struct {
	Date    string `validate:"omitempty,datetime=2006-01-02"`
	Minutes int    `validate:"gte=1,lte=1440"`
}

// Slots suggests start times on ?date= at which the member has ?minutes=
// of free time.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member id")
		return
	}

	minutes, err := queryInt(r, "minutes", 30)
	if err != nil {
		writeError(w, http.StatusBadRequest, "minutes must be a number")
		return
	}
	q := slotsQuery{Date: r.URL.Query().Get("date"), Minutes: minutes}
	if err := validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := h.members.GetMember(r.Context(), id)
	if err != nil {
		h.logger.Error("get member", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load member")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	family, err := h.families.GetByID(r.Context(), member.FamilyID)
	if err != nil || family == nil {
		h.logger.Error("get family", "family_id", member.FamilyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load family")
		return
	}

	date, err := parseDate(q.Date, family.Location(), h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	ok, err := h.finder.HasAvailability(r.Context(), id, date, q.Minutes)
	if err != nil {
		h.logger.Error("check availability", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check availability")
		return
	}
	slots, err := h.finder.SuggestSlots(r.Context(), id, date, q.Minutes)
	if err != nil {
		h.logger.Error("suggest slots", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to suggest slots")
		return
	}
	if slots == nil {
		slots = []time.Time{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_id": id,
		"date":      date.Format(model.DateLayout),
		"minutes":   q.Minutes,
		"available": ok,
		"slots":     slots,
	})
}
