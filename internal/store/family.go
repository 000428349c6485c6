package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/rota/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

func scanFamily(scanner interface{ Scan(...any) error }) (*model.Family, error) {
	var f model.Family
	err := scanner.Scan(&f.ID, &f.Name, &f.Timezone, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

const familyCols = `id, name, timezone, created_at, updated_at`

// Create inserts a family. timezone must be an IANA name; empty means UTC.
func (s *FamilyStore) Create(ctx context.Context, name, timezone string) (*model.Family, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidEntity, timezone, err)
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO families (name, timezone) VALUES (?, ?)`, name, timezone)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id int64) (*model.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

// List returns every family, for the periodic generation job.
func (s *FamilyStore) List(ctx context.Context) ([]model.Family, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+familyCols+` FROM families ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	var families []model.Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		families = append(families, *f)
	}
	return families, rows.Err()
}

func (s *FamilyStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM families WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete family: %w", err)
	}
	return nil
}

// location loads the timezone of a family, UTC when unset or unknown.
func location(timezone string) *time.Location {
	return model.Family{Timezone: timezone}.Location()
}
