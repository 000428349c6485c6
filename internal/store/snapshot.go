package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/rota/internal/model"
)

// SnapshotStore records encrypted database snapshots and their upload state.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotCols = `id, object_key, size_bytes, generations, status, error_message, started_at, completed_at`

func scanSnapshot(scanner interface{ Scan(...any) error }) (*model.Snapshot, error) {
	var s model.Snapshot
	var status string
	var errMsg sql.NullString
	var completedAt sql.NullTime
	err := scanner.Scan(&s.ID, &s.ObjectKey, &s.SizeBytes, &s.Generations, &status, &errMsg, &s.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	s.Status = model.SnapshotStatus(status)
	s.ErrorMessage = errMsg.String
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return &s, nil
}

func (s *SnapshotStore) Create(ctx context.Context, objectKey string, startedAt time.Time) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO snapshots (object_key, status, started_at) VALUES (?, ?, ?)
		 RETURNING `+snapshotCols,
		objectKey, model.SnapshotPending, startedAt.UTC(),
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", mapError(err))
	}
	return snap, nil
}

func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	return snap, nil
}

// List returns the most recent snapshots first.
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func (s *SnapshotStore) UpdateStatus(ctx context.Context, id int64, status model.SnapshotStatus, errorMsg string) error {
	var errPtr *string
	if errorMsg != "" {
		errPtr = &errorMsg
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, error_message = ? WHERE id = ?`,
		status, errPtr, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SnapshotStore) MarkCompleted(ctx context.Context, id, sizeBytes, generations int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, size_bytes = ?, generations = ?, completed_at = ?, error_message = NULL
		 WHERE id = ?`,
		model.SnapshotCompleted, sizeBytes, generations, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark snapshot completed: %w", err)
	}
	return nil
}

// DeleteOlderThan removes snapshots started before the cutoff and returns
// their object keys so the caller can delete the stored objects.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	var keys []string
	err := RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT object_key FROM snapshots WHERE started_at < ?`, before.UTC())
		if err != nil {
			return fmt.Errorf("select old snapshots: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return fmt.Errorf("scan object key: %w", err)
			}
			keys = append(keys, key)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE started_at < ?`, before.UTC()); err != nil {
			return fmt.Errorf("delete old snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
