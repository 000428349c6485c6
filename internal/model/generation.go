package model

import "time"

// DateLayout is the calendar-date format of generation records.
const DateLayout = "2006-01-02"

type GenerationKind string

const (
	GenerationGenerated GenerationKind = "generated"
	GenerationSkipped   GenerationKind = "skipped"
)

// GenerationRecord is an append-only fact that a template's occurrence on a
// date was generated or skipped. At most one exists per (template, date).
type GenerationRecord struct {
	ID             int64          `json:"id"`
	TemplateID     int64          `json:"template_id"`
	OccurrenceDate string         `json:"occurrence_date"`
	Kind           GenerationKind `json:"kind"`
	OccurrenceID   *int64         `json:"occurrence_id"`
	ActorID        *int64         `json:"actor_id"`
	RunID          string         `json:"run_id"`
	CreatedAt      time.Time      `json:"created_at"`
}
