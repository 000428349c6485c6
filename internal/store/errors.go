package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert collides with a unique constraint.
	// For generation records this means another run already handled the date.
	ErrDuplicate = errors.New("already exists")

	// ErrRotationConflict is returned when a template's rotation state changed
	// between read and write.
	ErrRotationConflict = errors.New("rotation state changed concurrently")

	// ErrInvalidEntity is returned when a row fails validation or a constraint
	// other than uniqueness.
	ErrInvalidEntity = errors.New("invalid entity")
)

// mapError translates SQLite errors into store sentinels, wrapping the
// original for context.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
		case sqlite3.SQLITE_CONSTRAINT:
			// Extended codes disabled on this connection.
			if strings.Contains(err.Error(), "UNIQUE") {
				return fmt.Errorf("%w: %v", ErrDuplicate, err)
			}
			return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
		}
	}
	return err
}
