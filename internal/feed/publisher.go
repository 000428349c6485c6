package feed

import (
	"context"
	"time"

	"github.com/dukerupert/rota/internal/generator"
	"github.com/dukerupert/rota/internal/model"
)

// Engine is the generation surface the publisher decorates.
type Engine interface {
	Generate(ctx context.Context, familyID int64, w generator.Window) ([]model.TaskOccurrence, error)
	Preview(ctx context.Context, templateID int64, w generator.Window) ([]generator.PreviewItem, error)
	Skip(ctx context.Context, templateID int64, date time.Time, actorID *int64) (bool, error)
	CompleteSeries(ctx context.Context, templateID int64, actorID *int64) (bool, error)
}

type Templates interface {
	GetTemplate(ctx context.Context, id int64) (*model.TaskTemplate, error)
}

// Publisher forwards to an Engine and broadcasts what changed.
type Publisher struct {
	engine    Engine
	templates Templates
	hub       *Hub
}

func NewPublisher(engine Engine, templates Templates, hub *Hub) *Publisher {
	return &Publisher{engine: engine, templates: templates, hub: hub}
}

func (p *Publisher) Generate(ctx context.Context, familyID int64, w generator.Window) ([]model.TaskOccurrence, error) {
	created, err := p.engine.Generate(ctx, familyID, w)
	for _, occ := range created {
		p.hub.Broadcast(NewEvent(familyID, "occurrence", "created", occ.ID, map[string]any{
			"template_id": occ.TemplateID,
			"assignee_id": occ.AssigneeID,
			"due_at":      occ.DueAt,
		}))
	}
	if len(created) > 0 || err != nil {
		p.hub.Broadcast(NewEvent(familyID, "generation", "finished", 0, map[string]any{
			"created": len(created),
			"failed":  err != nil,
		}))
	}
	return created, err
}

func (p *Publisher) Preview(ctx context.Context, templateID int64, w generator.Window) ([]generator.PreviewItem, error) {
	return p.engine.Preview(ctx, templateID, w)
}

func (p *Publisher) Skip(ctx context.Context, templateID int64, date time.Time, actorID *int64) (bool, error) {
	ok, err := p.engine.Skip(ctx, templateID, date, actorID)
	if err == nil && ok {
		p.announce(ctx, templateID, "skipped", map[string]any{"date": date.Format(model.DateLayout)})
	}
	return ok, err
}

func (p *Publisher) CompleteSeries(ctx context.Context, templateID int64, actorID *int64) (bool, error) {
	ok, err := p.engine.CompleteSeries(ctx, templateID, actorID)
	if err == nil && ok {
		p.announce(ctx, templateID, "completed", nil)
	}
	return ok, err
}

// announce broadcasts a template event to the template's family. Lookup
// failures only cost the event.
func (p *Publisher) announce(ctx context.Context, templateID int64, action string, extra map[string]any) {
	tmpl, err := p.templates.GetTemplate(ctx, templateID)
	if err != nil || tmpl == nil {
		p.hub.logger.Debug("template event not published", "template_id", templateID, "action", action, "error", err)
		return
	}
	p.hub.Broadcast(NewEvent(tmpl.FamilyID, "template", action, templateID, extra))
}
