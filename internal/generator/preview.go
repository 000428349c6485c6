package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/store"
)

// PreviewStatus is what a run would do with a candidate date.
type PreviewStatus string

const (
	PreviewPending   PreviewStatus = "pending"
	PreviewGenerated PreviewStatus = "generated"
	PreviewSkipped   PreviewStatus = "skipped"
	PreviewCompleted PreviewStatus = "completed"
)

type PreviewItem struct {
	Date   string        `json:"date"`
	DueAt  time.Time     `json:"due_at"`
	Status PreviewStatus `json:"status"`
}

// Preview lists the candidate dates of a template in w with their
// generation state. Nothing is written.
func (g *Generator) Preview(ctx context.Context, templateID int64, w Window) ([]PreviewItem, error) {
	tmpl, err := g.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template %d: %w", templateID, store.ErrNotFound)
	}

	dates, err := g.dates(*tmpl, w)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return []PreviewItem{}, nil
	}

	records, err := g.ledger.ListGenerations(ctx, tmpl.ID, dates[0].key, dates[len(dates)-1].key)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	kinds := make(map[string]model.GenerationKind, len(records))
	for _, r := range records {
		kinds[r.OccurrenceDate] = r.Kind
	}

	items := make([]PreviewItem, 0, len(dates))
	for _, d := range dates {
		item := PreviewItem{Date: d.key, DueAt: d.due, Status: PreviewPending}
		switch kinds[d.key] {
		case model.GenerationGenerated:
			item.Status = PreviewGenerated
		case model.GenerationSkipped:
			item.Status = PreviewSkipped
		default:
			if !tmpl.Active() {
				item.Status = PreviewCompleted
			}
		}
		items = append(items, item)
	}
	return items, nil
}
