package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/recurrence"
)

type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// TemplateParams describes a recurring task template to create.
type TemplateParams struct {
	FamilyID         int64
	Title            string
	Description      string
	Category         string
	RecurrenceRule   string
	Strategy         model.RotationStrategy
	Pool             []int64
	EstimatedMinutes int
	Points           int
	RequiresApproval bool
	RequiresPhoto    bool
	DueAt            time.Time
}

const templateCols = `t.id, t.family_id, t.title, t.description, t.category, t.recurrence_rule,
	t.rotation_strategy, t.rotation_cursor, t.rotation_last_rotated, t.rotation_version, t.pool_member_ids,
	t.estimated_minutes, t.points, t.requires_approval, t.requires_photo, t.due_at,
	t.completed_at, t.completed_by, t.created_at, t.updated_at, f.timezone`

const templateFrom = ` FROM task_templates t JOIN families f ON f.id = t.family_id`

func scanTemplate(scanner interface{ Scan(...any) error }) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	var strategy, pool, tz string
	var completedBy sql.NullInt64

	err := scanner.Scan(
		&t.ID, &t.FamilyID, &t.Title, &t.Description, &t.Category, &t.RecurrenceRule,
		&strategy, &t.Rotation.Cursor, &t.Rotation.LastRotated, &t.Rotation.Version, &pool,
		&t.EstimatedMinutes, &t.Points, &t.RequiresApproval, &t.RequiresPhoto, &t.DueAt,
		&t.CompletedAt, &completedBy, &t.CreatedAt, &t.UpdatedAt, &tz,
	)
	if err != nil {
		return nil, err
	}

	t.Strategy, err = model.ParseRotationStrategy(strategy)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pool), &t.Pool); err != nil {
		return nil, fmt.Errorf("decode pool: %w", err)
	}
	if completedBy.Valid {
		t.CompletedBy = &completedBy.Int64
	}
	// Occurrence dates and times of day follow the family's timezone.
	t.DueAt = t.DueAt.In(location(tz))
	return &t, nil
}

// Create validates and inserts a template. The recurrence rule must parse and
// every pool member must belong to the template's family.
func (s *TemplateStore) Create(ctx context.Context, p TemplateParams) (*model.TaskTemplate, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEntity)
	}
	if p.EstimatedMinutes < 0 {
		return nil, fmt.Errorf("%w: negative estimated minutes", ErrInvalidEntity)
	}
	if _, err := p.Strategy.MarshalText(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	if err := recurrence.Validate(p.RecurrenceRule); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}
	if err := s.checkPool(ctx, p.FamilyID, p.Pool); err != nil {
		return nil, err
	}

	pool := p.Pool
	if pool == nil {
		pool = []int64{}
	}
	poolJSON, err := json.Marshal(pool)
	if err != nil {
		return nil, fmt.Errorf("encode pool: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO task_templates (family_id, title, description, category, recurrence_rule,
		     rotation_strategy, pool_member_ids, estimated_minutes, points, requires_approval, requires_photo, due_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FamilyID, p.Title, p.Description, p.Category, p.RecurrenceRule,
		p.Strategy.String(), string(poolJSON), p.EstimatedMinutes, p.Points, p.RequiresApproval, p.RequiresPhoto, p.DueAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTemplate(ctx, id)
}

func (s *TemplateStore) checkPool(ctx context.Context, familyID int64, pool []int64) error {
	seen := make(map[int64]bool, len(pool))
	for _, id := range pool {
		if seen[id] {
			return fmt.Errorf("%w: member %d appears twice in pool", ErrInvalidEntity, id)
		}
		seen[id] = true

		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM family_members WHERE id = ? AND family_id = ?`, id, familyID,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("check pool member: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: member %d is not in family %d", ErrInvalidEntity, id, familyID)
		}
	}
	return nil
}

// GetTemplate returns nil without error when the template does not exist.
func (s *TemplateStore) GetTemplate(ctx context.Context, id int64) (*model.TaskTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateCols+templateFrom+` WHERE t.id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListActiveTemplates returns the family's templates whose series has not
// been completed, oldest first.
func (s *TemplateStore) ListActiveTemplates(ctx context.Context, familyID int64) ([]model.TaskTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateCols+templateFrom+` WHERE t.family_id = ? AND t.completed_at IS NULL ORDER BY t.id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	defer rows.Close()

	var templates []model.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// UpdateRecurrence replaces a template's rule after validating it.
func (s *TemplateStore) UpdateRecurrence(ctx context.Context, id int64, rule string) (*model.TaskTemplate, error) {
	if err := recurrence.Validate(rule); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE task_templates SET recurrence_rule = ? WHERE id = ?`, rule, id)
	if err != nil {
		return nil, fmt.Errorf("update recurrence: %w", err)
	}
	return s.GetTemplate(ctx, id)
}

// CompleteTemplate terminates a series. It reports false when the template
// does not exist or was already completed.
func (s *TemplateStore) CompleteTemplate(ctx context.Context, id int64, actorID *int64, at time.Time) (bool, error) {
	var actor sql.NullInt64
	if actorID != nil {
		actor = sql.NullInt64{Int64: *actorID, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE task_templates SET completed_at = ?, completed_by = ? WHERE id = ? AND completed_at IS NULL`,
		at.UTC(), actor, id,
	)
	if err != nil {
		return false, fmt.Errorf("complete template: %w", mapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
