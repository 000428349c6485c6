package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/rota/internal/generator"
	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/store"
)

// Engine is the generation surface the API drives.
type Engine interface {
	Generate(ctx context.Context, familyID int64, w generator.Window) ([]model.TaskOccurrence, error)
	Preview(ctx context.Context, templateID int64, w generator.Window) ([]generator.PreviewItem, error)
	Skip(ctx context.Context, templateID int64, date time.Time, actorID *int64) (bool, error)
	CompleteSeries(ctx context.Context, templateID int64, actorID *int64) (bool, error)
}

type GenerationHandler struct {
	families  *store.FamilyStore
	templates *store.TemplateStore
	gen       Engine
	horizon   int
	logger    *slog.Logger
	now       func() time.Time
}

// NewGenerationHandler serves generation, preview, skip and complete
// requests. horizonDays is the default window length.
func NewGenerationHandler(families *store.FamilyStore, templates *store.TemplateStore, gen Engine, horizonDays int, logger *slog.Logger) *GenerationHandler {
	if horizonDays <= 0 {
		horizonDays = 14
	}
	return &GenerationHandler{
		families:  families,
		templates: templates,
		gen:       gen,
		horizon:   horizonDays,
		logger:    logger,
		now:       time.Now,
	}
}

type windowRequest struct {
	From string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	Days int    `json:"days" validate:"gte=0,lte=366"`
}

func (h *GenerationHandler) window(req windowRequest, loc *time.Location) (generator.Window, error) {
	from, err := parseDate(req.From, loc, h.now())
	if err != nil {
		return generator.Window{}, err
	}
	days := req.Days
	if days == 0 {
		days = h.horizon
	}
	return generator.Window{From: from, To: from.AddDate(0, 0, days)}, nil
}

// Generate materializes a family's occurrences over the requested window.
// Per-template failures are reported alongside whatever was created.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid family id")
		return
	}

	var req windowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
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

	win, err := h.window(req, family.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}

	created, err := h.gen.Generate(r.Context(), id, win)
	if err != nil {
		h.logger.Warn("generation finished with errors", "family_id", id, "error", err)
	}
	if created == nil {
		created = []model.TaskOccurrence{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"occurrences": created,
		"errors":      joinedErrors(err),
	})
}

// Preview lists a template's candidate dates and their generation state.
func (h *GenerationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be a number")
		return
	}
	req := windowRequest{From: r.URL.Query().Get("from"), Days: days}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl, err := h.templates.GetTemplate(r.Context(), id)
	if err != nil {
		h.logger.Error("get template", "template_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load template")
		return
	}
	if tmpl == nil {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	win, err := h.window(req, tmpl.DueAt.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}

	items, err := h.gen.Preview(r.Context(), id, win)
	if err != nil {
		h.writeGeneratorError(w, "preview", id, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type skipRequest struct {
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	ActorID *int64 `json:"actor_id" validate:"omitempty,gt=0"`
}

// Skip marks one date of a template as never to be generated.
func (h *GenerationHandler) Skip(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	var req skipRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := time.Parse(model.DateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	skipped, err := h.gen.Skip(r.Context(), id, date, req.ActorID)
	if err != nil {
		h.writeGeneratorError(w, "skip", id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": req.Date, "skipped": skipped})
}

type completeRequest struct {
	ActorID *int64 `json:"actor_id" validate:"omitempty,gt=0"`
}

// Complete ends a template's series. Occurrences already generated are kept.
func (h *GenerationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	var req completeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	completed, err := h.gen.CompleteSeries(r.Context(), id, req.ActorID)
	if err != nil {
		h.writeGeneratorError(w, "complete series", id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"completed": completed})
}

func (h *GenerationHandler) writeGeneratorError(w http.ResponseWriter, op string, templateID int64, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	h.logger.Error(op, "template_id", templateID, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}
