// Package generator materializes the occurrences of recurring task templates.
//
// A run expands every active template of a family over a window, collapses
// the expansion to calendar dates and, for each date without a generation
// record, asks the rotation engine for an assignee. Creating the occurrence,
// its generation record and the advanced rotation cursor happens in one store
// transaction, so re-running over an overlapping window never duplicates work.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/recurrence"
	"github.com/dukerupert/rota/internal/rotation"
	"github.com/dukerupert/rota/internal/store"
)

// ErrRotationConflict means another writer advanced a template's rotation
// cursor during the run. The template is left for the next run.
var ErrRotationConflict = errors.New("rotation conflict")

type Templates interface {
	ListActiveTemplates(ctx context.Context, familyID int64) ([]model.TaskTemplate, error)
	GetTemplate(ctx context.Context, id int64) (*model.TaskTemplate, error)
	CompleteTemplate(ctx context.Context, id int64, actorID *int64, at time.Time) (bool, error)
}

type Ledger interface {
	HasGeneration(ctx context.Context, templateID int64, date string) (bool, error)
	ListGenerations(ctx context.Context, templateID int64, fromDate, toDate string) ([]model.GenerationRecord, error)
	Materialize(ctx context.Context, m store.Materialization) (*model.TaskOccurrence, *model.RotationState, error)
	RecordSkip(ctx context.Context, templateID int64, date string, actorID *int64, runID string) (bool, error)
}

type Selector interface {
	Select(ctx context.Context, tmpl model.TaskTemplate, due time.Time) (rotation.Selection, error)
}

// Metrics receives generation events.
type Metrics interface {
	OccurrenceGenerated(strategy model.RotationStrategy)
	DuplicateSkipped()
	RotationConflict()
	AssigneeSelected(strategy model.RotationStrategy, reason rotation.Reason)
	RunFinished(d time.Duration, failed bool)
}

// Window is the half-open interval [From, To) a run covers.
type Window struct {
	From time.Time
	To   time.Time
}

// TemplateError reports a failure confined to one template. Other templates
// of the same run are still processed.
type TemplateError struct {
	TemplateID int64
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %d: %v", e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

type Generator struct {
	templates Templates
	ledger    Ledger
	selector  Selector
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
	limit     int
}

type Option func(*Generator)

func WithMetrics(m Metrics) Option {
	return func(g *Generator) {
		if m != nil {
			g.metrics = m
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithClock replaces time.Now for completion timestamps and run timing.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLimit caps the expansion of each template per run.
func WithLimit(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.limit = n
		}
	}
}

func New(templates Templates, ledger Ledger, selector Selector, opts ...Option) *Generator {
	g := &Generator{
		templates: templates,
		ledger:    ledger,
		selector:  selector,
		metrics:   nopMetrics{},
		logger:    slog.Default(),
		now:       time.Now,
		limit:     recurrence.DefaultLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate creates the missing occurrences of every active template of the
// family in w and returns the ones it created. Failures are reported per
// template as *TemplateError values joined into the returned error; the
// occurrences created before a failure are still returned.
func (g *Generator) Generate(ctx context.Context, familyID int64, w Window) ([]model.TaskOccurrence, error) {
	runID := uuid.NewString()
	log := g.logger.With("run_id", runID, "family_id", familyID)
	started := g.now()

	templates, err := g.templates.ListActiveTemplates(ctx, familyID)
	if err != nil {
		g.metrics.RunFinished(g.now().Sub(started), true)
		return nil, fmt.Errorf("list active templates: %w", err)
	}

	var created []model.TaskOccurrence
	var errs []error
	for _, tmpl := range templates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		occs, err := g.generateTemplate(ctx, log, runID, tmpl, w)
		created = append(created, occs...)
		if err != nil {
			log.Warn("template generation failed", "template_id", tmpl.ID, "error", err)
			errs = append(errs, &TemplateError{TemplateID: tmpl.ID, Err: err})
		}
	}

	err = errors.Join(errs...)
	g.metrics.RunFinished(g.now().Sub(started), err != nil)
	log.Info("generation run complete",
		"templates", len(templates),
		"created", len(created),
		"from", w.From,
		"to", w.To)
	return created, err
}

func (g *Generator) generateTemplate(ctx context.Context, log *slog.Logger, runID string, tmpl model.TaskTemplate, w Window) ([]model.TaskOccurrence, error) {
	log = log.With("template_id", tmpl.ID)

	dates, err := g.dates(tmpl, w)
	if err != nil {
		return nil, err
	}

	var created []model.TaskOccurrence
	for _, d := range dates {
		exists, err := g.ledger.HasGeneration(ctx, tmpl.ID, d.key)
		if err != nil {
			return created, fmt.Errorf("check generation %s: %w", d.key, err)
		}
		if exists {
			log.Debug("occurrence already handled", "date", d.key)
			g.metrics.DuplicateSkipped()
			continue
		}

		sel, err := g.selector.Select(ctx, tmpl, d.due)
		if err != nil {
			return created, fmt.Errorf("select assignee for %s: %w", d.key, err)
		}
		g.metrics.AssigneeSelected(tmpl.Strategy, sel.Reason)
		if !sel.Assigned() {
			log.Debug("occurrence left unassigned", "date", d.key, "reason", string(sel.Reason))
			continue
		}

		occ, rot, err := g.ledger.Materialize(ctx, store.Materialization{
			Template:   tmpl,
			Date:       d.key,
			DueAt:      d.due,
			AssigneeID: *sel.AssigneeID,
			Rotation:   sel.Rotation,
			RunID:      runID,
		})
		switch {
		case errors.Is(err, store.ErrDuplicate):
			log.Debug("occurrence created concurrently", "date", d.key)
			g.metrics.DuplicateSkipped()
			continue
		case errors.Is(err, store.ErrRotationConflict):
			g.metrics.RotationConflict()
			return created, fmt.Errorf("%w: %w", ErrRotationConflict, err)
		case err != nil:
			return created, fmt.Errorf("materialize %s: %w", d.key, err)
		}

		if rot != nil {
			tmpl.Rotation = *rot
		}
		g.metrics.OccurrenceGenerated(tmpl.Strategy)
		log.Debug("occurrence created", "date", d.key, "occurrence_id", occ.ID, "assignee_id", *sel.AssigneeID)
		created = append(created, *occ)
	}
	return created, nil
}

type candidate struct {
	key string
	due time.Time
}

// dates expands tmpl over w and keeps the first timestamp of each calendar
// date, moved to the template's time of day.
func (g *Generator) dates(tmpl model.TaskTemplate, w Window) ([]candidate, error) {
	times, err := recurrence.Expand(tmpl.RecurrenceRule, tmpl.DueAt, w.From, w.To, g.limit)
	if err != nil {
		return nil, fmt.Errorf("expand recurrence: %w", err)
	}

	var out []candidate
	seen := make(map[string]bool, len(times))
	for _, t := range times {
		key := tmpl.DateKey(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, candidate{key: key, due: tmpl.DueOn(t)})
	}
	return out, nil
}

// Skip records that the template's occurrence on the calendar date of date
// (taken as given, without timezone conversion) must not be generated. It
// reports false when the date was already generated or skipped.
func (g *Generator) Skip(ctx context.Context, templateID int64, date time.Time, actorID *int64) (bool, error) {
	tmpl, err := g.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return false, fmt.Errorf("get template: %w", err)
	}
	if tmpl == nil {
		return false, fmt.Errorf("template %d: %w", templateID, store.ErrNotFound)
	}

	key := date.Format(model.DateLayout)
	runID := uuid.NewString()
	ok, err := g.ledger.RecordSkip(ctx, tmpl.ID, key, actorID, runID)
	if err != nil {
		return false, err
	}
	g.logger.Info("occurrence skip requested",
		"run_id", runID,
		"template_id", tmpl.ID,
		"date", key,
		"recorded", ok)
	return ok, nil
}

// CompleteSeries stops a template from producing further occurrences.
// Existing occurrences are untouched. It reports false when the template does
// not exist or was already completed.
func (g *Generator) CompleteSeries(ctx context.Context, templateID int64, actorID *int64) (bool, error) {
	ok, err := g.templates.CompleteTemplate(ctx, templateID, actorID, g.now())
	if err != nil {
		return false, err
	}
	if ok {
		g.logger.Info("template series completed", "template_id", templateID)
	}
	return ok, nil
}
