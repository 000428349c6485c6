// Package workload computes how much of a family member's weekly capacity is
// already committed to open tasks and calendar events.
package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/rota/internal/capacity"
	"github.com/dukerupert/rota/internal/model"
)

// Week is the span a workload is measured over.
const Week = 7 * 24 * time.Hour

// DefaultOpenEnded is the busy time charged for a calendar interval that has
// a start but no end.
const DefaultOpenEnded = 60 * time.Minute

type Members interface {
	GetMember(ctx context.Context, id int64) (*model.FamilyMember, error)
}

type OpenWork interface {
	ListOpenAssigned(ctx context.Context, personID int64, from, to time.Time) ([]model.TaskOccurrence, error)
}

type Calendar interface {
	BusyIntervals(ctx context.Context, personID int64, from, to time.Time) ([]model.BusyInterval, error)
}

// Breakdown is the detail behind a workload fraction.
type Breakdown struct {
	PersonID        int64   `json:"person_id"`
	CapacityMinutes int     `json:"capacity_minutes"`
	TaskMinutes     int     `json:"task_minutes"`
	BusyMinutes     int     `json:"busy_minutes"`
	Load            float64 `json:"load"`
}

// Calculator is read-only and safe for concurrent use.
type Calculator struct {
	members   Members
	work      OpenWork
	calendar  Calendar
	capacity  capacity.Table
	openEnded time.Duration
}

func NewCalculator(members Members, work OpenWork, calendar Calendar, table capacity.Table) *Calculator {
	return &Calculator{
		members:   members,
		work:      work,
		calendar:  calendar,
		capacity:  table,
		openEnded: DefaultOpenEnded,
	}
}

// Capacity returns the weekly budget of a member, 0 when the member is
// unknown or belongs to an excluded class.
func (c *Calculator) Capacity(ctx context.Context, personID int64) (int, error) {
	m, err := c.members.GetMember(ctx, personID)
	if err != nil {
		return 0, fmt.Errorf("get member %d: %w", personID, err)
	}
	if m == nil {
		return 0, nil
	}
	return c.capacity.Minutes(m.Class), nil
}

// Workload returns committed minutes divided by weekly capacity for the week
// starting at weekStart. Values above 1.0 mean the member is over capacity.
// Excluded members always report 0.
func (c *Calculator) Workload(ctx context.Context, personID int64, weekStart time.Time) (float64, error) {
	b, err := c.Breakdown(ctx, personID, weekStart)
	if err != nil {
		return 0, err
	}
	return b.Load, nil
}

func (c *Calculator) Breakdown(ctx context.Context, personID int64, weekStart time.Time) (Breakdown, error) {
	b := Breakdown{PersonID: personID}

	capMinutes, err := c.Capacity(ctx, personID)
	if err != nil {
		return b, err
	}
	if capMinutes <= 0 {
		return b, nil
	}
	b.CapacityMinutes = capMinutes

	from, to := weekStart, weekStart.Add(Week)

	tasks, err := c.work.ListOpenAssigned(ctx, personID, from, to)
	if err != nil {
		return b, fmt.Errorf("list open work for %d: %w", personID, err)
	}
	for _, t := range tasks {
		if !t.Status.Open() || t.DueAt.Before(from) || !t.DueAt.Before(to) {
			continue
		}
		b.TaskMinutes += t.EstimatedMinutes
	}

	busy, err := c.calendar.BusyIntervals(ctx, personID, from, to)
	if err != nil {
		return b, fmt.Errorf("busy intervals for %d: %w", personID, err)
	}
	b.BusyMinutes = BusyMinutes(busy, from, to, c.openEnded)

	b.Load = float64(b.TaskMinutes+b.BusyMinutes) / float64(capMinutes)
	return b, nil
}

// BusyMinutes sums the minutes of intervals that fall inside [from, to).
// All-day intervals count for nothing; an interval without an end counts as
// openEnded long.
func BusyMinutes(intervals []model.BusyInterval, from, to time.Time, openEnded time.Duration) int {
	var total time.Duration
	for _, iv := range intervals {
		if iv.AllDay {
			continue
		}
		end := iv.Start.Add(openEnded)
		if iv.End != nil {
			end = *iv.End
		}
		start := iv.Start
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return int(total / time.Minute)
}

// WeekStart returns Monday 00:00 of the week containing t, in t's location.
func WeekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	monday := t.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}
