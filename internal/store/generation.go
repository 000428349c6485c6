package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/rota/internal/model"
)

// GenerationStore owns the generation log and the writes that must be atomic
// with it.
type GenerationStore struct {
	db *sql.DB
}

func NewGenerationStore(db *sql.DB) *GenerationStore {
	return &GenerationStore{db: db}
}

// Materialization is one occurrence about to be created from a template.
type Materialization struct {
	Template   model.TaskTemplate
	Date       string // model.DateLayout in the template's timezone
	DueAt      time.Time
	AssigneeID int64
	// Rotation, when non-nil, replaces the template's rotation state. The
	// write only succeeds if the stored version still equals
	// Template.Rotation.Version.
	Rotation *model.RotationState
	RunID    string
}

const generationCols = `id, template_id, occurrence_date, kind, occurrence_id, actor_id, run_id, created_at`

func scanGeneration(scanner interface{ Scan(...any) error }) (*model.GenerationRecord, error) {
	var g model.GenerationRecord
	var kind string
	var occurrenceID, actorID sql.NullInt64
	err := scanner.Scan(&g.ID, &g.TemplateID, &g.OccurrenceDate, &kind, &occurrenceID, &actorID, &g.RunID, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.Kind = model.GenerationKind(kind)
	if occurrenceID.Valid {
		g.OccurrenceID = &occurrenceID.Int64
	}
	if actorID.Valid {
		g.ActorID = &actorID.Int64
	}
	return &g, nil
}

// HasGeneration reports whether any record exists for the template and date.
func (s *GenerationStore) HasGeneration(ctx context.Context, templateID int64, date string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generation_records WHERE template_id = ? AND occurrence_date = ?`,
		templateID, date,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check generation: %w", err)
	}
	return n > 0, nil
}

// ListGenerations returns a template's records with dates in [fromDate, toDate].
func (s *GenerationStore) ListGenerations(ctx context.Context, templateID int64, fromDate, toDate string) ([]model.GenerationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+generationCols+` FROM generation_records
		 WHERE template_id = ? AND occurrence_date >= ? AND occurrence_date <= ?
		 ORDER BY occurrence_date ASC`,
		templateID, fromDate, toDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var records []model.GenerationRecord
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		records = append(records, *g)
	}
	return records, rows.Err()
}

// Materialize creates the occurrence, its generated record and, for rotating
// templates, the advanced rotation state in one transaction. It returns
// ErrDuplicate when a record for the date already exists and
// ErrRotationConflict when the rotation state moved since it was read. On
// success the persisted rotation state is returned (nil when unchanged).
func (s *GenerationStore) Materialize(ctx context.Context, m Materialization) (*model.TaskOccurrence, *model.RotationState, error) {
	t := m.Template
	var occurrenceID int64
	var rotation *model.RotationState

	err := RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO task_occurrences (family_id, template_id, title, category, assignee_id, due_at,
			     status, estimated_minutes, points, requires_approval, requires_photo)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.FamilyID, t.ID, t.Title, t.Category, m.AssigneeID, m.DueAt.UTC(),
			string(model.OccurrencePending), t.EstimatedMinutes, t.Points, t.RequiresApproval, t.RequiresPhoto,
		)
		if err != nil {
			return fmt.Errorf("insert occurrence: %w", mapError(err))
		}
		occurrenceID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO generation_records (template_id, occurrence_date, kind, occurrence_id, run_id)
			 VALUES (?, ?, ?, ?, ?)`,
			t.ID, m.Date, string(model.GenerationGenerated), occurrenceID, m.RunID,
		)
		if err != nil {
			return fmt.Errorf("insert generation record: %w", mapError(err))
		}

		if m.Rotation == nil {
			return nil
		}
		if err := m.Rotation.Validate(len(t.Pool)); err != nil {
			return err
		}
		var lastRotated any
		if m.Rotation.LastRotated != nil {
			lastRotated = m.Rotation.LastRotated.UTC()
		}
		result, err = tx.ExecContext(ctx,
			`UPDATE task_templates
			 SET rotation_cursor = ?, rotation_last_rotated = ?, rotation_version = rotation_version + 1
			 WHERE id = ? AND rotation_version = ?`,
			m.Rotation.Cursor, lastRotated, t.ID, t.Rotation.Version,
		)
		if err != nil {
			return fmt.Errorf("advance rotation: %w", mapError(err))
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("template %d at version %d: %w", t.ID, t.Rotation.Version, ErrRotationConflict)
		}
		next := *m.Rotation
		next.Version = t.Rotation.Version + 1
		rotation = &next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	o, err := NewOccurrenceStore(s.db).GetByID(ctx, occurrenceID)
	if err != nil {
		return nil, nil, err
	}
	return o, rotation, nil
}

// RecordSkip writes a skipped record for the date. It reports false when a
// record already exists.
func (s *GenerationStore) RecordSkip(ctx context.Context, templateID int64, date string, actorID *int64, runID string) (bool, error) {
	var actor sql.NullInt64
	if actorID != nil {
		actor = sql.NullInt64{Int64: *actorID, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO generation_records (template_id, occurrence_date, kind, actor_id, run_id)
		 VALUES (?, ?, ?, ?, ?)`,
		templateID, date, string(model.GenerationSkipped), actor, runID,
	)
	if err != nil {
		return false, fmt.Errorf("record skip: %w", mapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
