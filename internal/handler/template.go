package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/recurrence"
	"github.com/dukerupert/rota/internal/store"
)

type TemplateHandler struct {
	families  *store.FamilyStore
	templates *store.TemplateStore
	logger    *slog.Logger
}

func NewTemplateHandler(families *store.FamilyStore, templates *store.TemplateStore, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{families: families, templates: templates, logger: logger}
}

type templateView struct {
	model.TaskTemplate
	Rule     string `json:"rule"`
	Describe string `json:"describe"`
}

func (h *TemplateHandler) view(t model.TaskTemplate) templateView {
	v := templateView{TaskTemplate: t, Describe: "Does not repeat"}
	if strings.TrimSpace(t.RecurrenceRule) == "" {
		return v
	}
	rule, err := recurrence.Parse(t.RecurrenceRule)
	if err != nil {
		// Stored rules are validated on write; keep the raw text if one slips through.
		h.logger.Warn("parse stored rule", "template_id", t.ID, "error", err)
		v.Rule, v.Describe = t.RecurrenceRule, ""
		return v
	}
	v.Rule, v.Describe = rule.String(), rule.Describe()
	return v
}

// List returns the family's active templates with their normalized rule and
// a readable description of it.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
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

	templates, err := h.templates.ListActiveTemplates(r.Context(), id)
	if err != nil {
		h.logger.Error("list templates", "family_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, h.view(t))
	}
	writeJSON(w, http.StatusOK, views)
}

type recurrenceRequest struct {
	Rule *string `json:"rule" validate:"required"`
}

// UpdateRecurrence replaces a template's rule. An empty rule turns the
// template into a one-off task.
func (h *TemplateHandler) UpdateRecurrence(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	var req recurrenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "rule is required")
		return
	}

	tmpl, err := h.templates.UpdateRecurrence(r.Context(), id, *req.Rule)
	if errors.Is(err, store.ErrInvalidEntity) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("update recurrence", "template_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update recurrence")
		return
	}
	if tmpl == nil {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	h.logger.Info("recurrence updated", "template_id", id, "rule", *req.Rule)
	writeJSON(w, http.StatusOK, h.view(*tmpl))
}
