package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/recurrence"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// EventParams describes a calendar event to create. A nil EndTime means the
// event runs until the end of its day.
type EventParams struct {
	FamilyID       int64
	Title          string
	StartTime      time.Time
	EndTime        *time.Time
	AllDay         bool
	FamilyMemberID *int64
	RecurrenceRule string
}

const eventCols = `e.id, e.family_id, e.title, e.start_time, e.end_time, e.all_day, e.family_member_id, e.recurrence_rule, e.created_at, e.updated_at, f.timezone`

const eventFrom = ` FROM calendar_events e JOIN families f ON f.id = e.family_id`

type eventRow struct {
	model.CalendarEvent
	loc *time.Location
}

func scanEvent(scanner interface{ Scan(...any) error }) (*eventRow, error) {
	var e eventRow
	var memberID sql.NullInt64
	var tz string
	err := scanner.Scan(&e.ID, &e.FamilyID, &e.Title, &e.StartTime, &e.EndTime, &e.AllDay, &memberID, &e.RecurrenceRule, &e.CreatedAt, &e.UpdatedAt, &tz)
	if err != nil {
		return nil, err
	}
	if memberID.Valid {
		e.FamilyMemberID = &memberID.Int64
	}
	e.loc = location(tz)
	e.StartTime = e.StartTime.In(e.loc)
	if e.EndTime != nil {
		end := e.EndTime.In(e.loc)
		e.EndTime = &end
	}
	return &e, nil
}

func (s *EventStore) Create(ctx context.Context, p EventParams) (*model.CalendarEvent, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEntity)
	}
	if p.EndTime != nil && p.EndTime.Before(p.StartTime) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidEntity)
	}
	if err := recurrence.Validate(p.RecurrenceRule); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}

	var memberID sql.NullInt64
	if p.FamilyMemberID != nil {
		memberID = sql.NullInt64{Int64: *p.FamilyMemberID, Valid: true}
	}
	var end any
	if p.EndTime != nil {
		end = p.EndTime.UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_events (family_id, title, start_time, end_time, all_day, family_member_id, recurrence_rule)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.FamilyID, p.Title, p.StartTime.UTC(), end, p.AllDay, memberID, p.RecurrenceRule,
	)
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *EventStore) GetByID(ctx context.Context, id int64) (*model.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+eventFrom+` WHERE e.id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query calendar event: %w", err)
	}
	return &e.CalendarEvent, nil
}

func (s *EventStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

// BusyIntervals returns the spans of personID's events that touch [from, to),
// with recurring events expanded in their family's timezone.
func (s *EventStore) BusyIntervals(ctx context.Context, personID int64, from, to time.Time) ([]model.BusyInterval, error) {
	// Open-ended events run to the end of their start day, so one starting
	// up to a day before from can still be busy inside the window.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+eventFrom+`
		 WHERE e.family_member_id = ? AND e.start_time < ? AND (
		     e.recurrence_rule != ''
		     OR (e.end_time IS NULL AND e.start_time >= ?)
		     OR e.end_time > ?
		 )
		 ORDER BY e.start_time ASC`,
		personID, to.UTC(), from.Add(-24*time.Hour).UTC(), from.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query busy events: %w", err)
	}
	defer rows.Close()

	var events []eventRow
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var intervals []model.BusyInterval
	for _, e := range events {
		intervals = append(intervals, expandEvent(e, from, to)...)
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})
	return intervals, nil
}

func expandEvent(e eventRow, from, to time.Time) []model.BusyInterval {
	single := model.BusyInterval{Start: e.StartTime, End: e.EndTime, AllDay: e.AllDay}
	if e.RecurrenceRule == "" {
		return []model.BusyInterval{single}
	}
	rule, err := recurrence.Parse(e.RecurrenceRule)
	if err != nil {
		// Rules are validated on write; treat a corrupt one as a single event.
		return []model.BusyInterval{single}
	}

	end := e.StartTime
	if e.EndTime != nil {
		end = *e.EndTime
	}
	lookback := from.Add(-24 * time.Hour).In(e.loc)

	var out []model.BusyInterval
	for _, occ := range recurrence.ExpandSpans(rule, e.StartTime, end, lookback, to.In(e.loc), 0) {
		iv := model.BusyInterval{Start: occ.Start, AllDay: e.AllDay}
		if e.EndTime != nil {
			occEnd := occ.End
			if !occEnd.After(from) {
				continue
			}
			iv.End = &occEnd
		}
		out = append(out, iv)
	}
	return out
}
