package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/rota/internal/model"
)

type OccurrenceStore struct {
	db *sql.DB
}

func NewOccurrenceStore(db *sql.DB) *OccurrenceStore {
	return &OccurrenceStore{db: db}
}

const occurrenceCols = `id, family_id, template_id, title, category, assignee_id, due_at, status,
	estimated_minutes, points, requires_approval, requires_photo, created_at`

func scanOccurrence(scanner interface{ Scan(...any) error }) (*model.TaskOccurrence, error) {
	var o model.TaskOccurrence
	var templateID, assigneeID sql.NullInt64
	var status string

	err := scanner.Scan(
		&o.ID, &o.FamilyID, &templateID, &o.Title, &o.Category, &assigneeID, &o.DueAt, &status,
		&o.EstimatedMinutes, &o.Points, &o.RequiresApproval, &o.RequiresPhoto, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if templateID.Valid {
		o.TemplateID = &templateID.Int64
	}
	if assigneeID.Valid {
		o.AssigneeID = &assigneeID.Int64
	}
	o.Status = model.OccurrenceStatus(status)
	return &o, nil
}

func (s *OccurrenceStore) GetByID(ctx context.Context, id int64) (*model.TaskOccurrence, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+occurrenceCols+` FROM task_occurrences WHERE id = ?`, id)
	o, err := scanOccurrence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence: %w", err)
	}
	return o, nil
}

// ListOpenAssigned returns the pending and in-progress occurrences assigned to
// personID that are due in [from, to).
func (s *OccurrenceStore) ListOpenAssigned(ctx context.Context, personID int64, from, to time.Time) ([]model.TaskOccurrence, error) {
	return s.list(ctx,
		`SELECT `+occurrenceCols+` FROM task_occurrences
		 WHERE assignee_id = ? AND status IN ('pending', 'in_progress') AND due_at >= ? AND due_at < ?
		 ORDER BY due_at ASC, id ASC`,
		personID, from.UTC(), to.UTC(),
	)
}

// ListOccurrences returns every occurrence of the family due in [from, to).
func (s *OccurrenceStore) ListOccurrences(ctx context.Context, familyID int64, from, to time.Time) ([]model.TaskOccurrence, error) {
	return s.list(ctx,
		`SELECT `+occurrenceCols+` FROM task_occurrences
		 WHERE family_id = ? AND due_at >= ? AND due_at < ?
		 ORDER BY due_at ASC, id ASC`,
		familyID, from.UTC(), to.UTC(),
	)
}

// ListByTemplate returns every occurrence generated from a template.
func (s *OccurrenceStore) ListByTemplate(ctx context.Context, templateID int64) ([]model.TaskOccurrence, error) {
	return s.list(ctx,
		`SELECT `+occurrenceCols+` FROM task_occurrences WHERE template_id = ? ORDER BY due_at ASC, id ASC`,
		templateID,
	)
}

func (s *OccurrenceStore) list(ctx context.Context, query string, args ...any) ([]model.TaskOccurrence, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var occurrences []model.TaskOccurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		occurrences = append(occurrences, *o)
	}
	return occurrences, rows.Err()
}

func (s *OccurrenceStore) UpdateStatus(ctx context.Context, id int64, status model.OccurrenceStatus) (*model.TaskOccurrence, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE task_occurrences SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return nil, fmt.Errorf("update occurrence status: %w", mapError(err))
	}
	return s.GetByID(ctx, id)
}
