package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/rota/internal/model"
)

type FamilyMemberStore struct {
	db *sql.DB
}

func NewFamilyMemberStore(db *sql.DB) *FamilyMemberStore {
	return &FamilyMemberStore{db: db}
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.FamilyMember, error) {
	var m model.FamilyMember
	var class string
	err := scanner.Scan(&m.ID, &m.FamilyID, &m.Name, &class, &m.Color, &m.AvatarEmoji, &m.SortOrder, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Class = model.PersonClass(class)
	return &m, nil
}

const memberCols = `id, family_id, name, class, color, avatar_emoji, sort_order, created_at, updated_at`

// Create appends a member to the end of the family's sort order.
func (s *FamilyMemberStore) Create(ctx context.Context, familyID int64, name string, class model.PersonClass, color, avatarEmoji string) (*model.FamilyMember, error) {
	if _, err := model.ParsePersonClass(string(class)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}

	var maxOrder int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sort_order), -1) FROM family_members WHERE family_id = ?", familyID,
	).Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO family_members (family_id, name, class, color, avatar_emoji, sort_order) VALUES (?, ?, ?, ?, ?, ?)",
		familyID, name, string(class), color, avatarEmoji, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family member: %w", mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetMember(ctx, id)
}

// GetMember returns nil without error when the member does not exist.
func (s *FamilyMemberStore) GetMember(ctx context.Context, id int64) (*model.FamilyMember, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memberCols+" FROM family_members WHERE id = ?", id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family member: %w", err)
	}
	return m, nil
}

func (s *FamilyMemberStore) ListMembers(ctx context.Context, familyID int64) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memberCols+" FROM family_members WHERE family_id = ? ORDER BY sort_order, id", familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("query family members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *FamilyMemberStore) UpdateClass(ctx context.Context, id int64, class model.PersonClass) (*model.FamilyMember, error) {
	if _, err := model.ParsePersonClass(string(class)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	_, err := s.db.ExecContext(ctx, "UPDATE family_members SET class = ? WHERE id = ?", string(class), id)
	if err != nil {
		return nil, fmt.Errorf("update family member class: %w", mapError(err))
	}
	return s.GetMember(ctx, id)
}

func (s *FamilyMemberStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM family_members WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete family member: %w", err)
	}
	return nil
}
