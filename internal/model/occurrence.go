package model

import "time"

type OccurrenceStatus string

const (
	OccurrencePending    OccurrenceStatus = "pending"
	OccurrenceInProgress OccurrenceStatus = "in_progress"
	OccurrenceCompleted  OccurrenceStatus = "completed"
	OccurrenceApproved   OccurrenceStatus = "approved"
	OccurrenceSkipped    OccurrenceStatus = "skipped"
)

// Open reports whether the occurrence still counts against its assignee's workload.
func (s OccurrenceStatus) Open() bool {
	return s == OccurrencePending || s == OccurrenceInProgress
}

type TaskOccurrence struct {
	ID               int64            `json:"id"`
	FamilyID         int64            `json:"family_id"`
	TemplateID       *int64           `json:"template_id"`
	Title            string           `json:"title"`
	Category         string           `json:"category"`
	AssigneeID       *int64           `json:"assignee_id"`
	DueAt            time.Time        `json:"due_at"`
	Status           OccurrenceStatus `json:"status"`
	EstimatedMinutes int              `json:"estimated_minutes"`
	Points           int              `json:"points"`
	RequiresApproval bool             `json:"requires_approval"`
	RequiresPhoto    bool             `json:"requires_photo"`
	CreatedAt        time.Time        `json:"created_at"`
}
