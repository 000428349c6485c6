// Package availability finds free time in a family member's calendar day.
package availability

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukerupert/rota/internal/model"
)

// MaxSuggestions is the most slots SuggestSlots returns.
const MaxSuggestions = 3

type Calendar interface {
	BusyIntervals(ctx context.Context, personID int64, from, to time.Time) ([]model.BusyInterval, error)
}

// Hours is a time-of-day window expressed as offsets from midnight.
type Hours struct {
	Start time.Duration
	End   time.Duration
}

// DefaultPreferred is 08:00-20:00.
var DefaultPreferred = Hours{Start: 8 * time.Hour, End: 20 * time.Hour}

type span struct {
	start, end time.Time
}

func (s span) length() time.Duration { return s.end.Sub(s.start) }

func (s span) intersect(o span) span {
	if o.start.After(s.start) {
		s.start = o.start
	}
	if o.end.Before(s.end) {
		s.end = o.end
	}
	if s.end.Before(s.start) {
		s.end = s.start
	}
	return s
}

// Finder is read-only and safe for concurrent use.
type Finder struct {
	calendar  Calendar
	preferred Hours
}

func NewFinder(calendar Calendar, preferred Hours) *Finder {
	if preferred.End <= preferred.Start {
		preferred = DefaultPreferred
	}
	return &Finder{calendar: calendar, preferred: preferred}
}

// HasAvailability reports whether personID has a free stretch of at least
// requiredMinutes inside the preferred hours of date.
func (f *Finder) HasAvailability(ctx context.Context, personID int64, date time.Time, requiredMinutes int) (bool, error) {
	day, gaps, busy, err := f.gaps(ctx, personID, date)
	if err != nil {
		return false, err
	}
	if !busy {
		return true, nil
	}
	need := minutes(requiredMinutes)
	pref := f.preferredSpan(day)
	for _, g := range gaps {
		if g.intersect(pref).length() >= need {
			return true, nil
		}
	}
	return false, nil
}

// SuggestSlots returns up to MaxSuggestions start times on date at which
// requiredMinutes of free time begins. Slots inside the preferred hours come
// first; when there are none, any sufficient gap in the day is used.
func (f *Finder) SuggestSlots(ctx context.Context, personID int64, date time.Time, requiredMinutes int) ([]time.Time, error) {
	day, gaps, busy, err := f.gaps(ctx, personID, date)
	if err != nil {
		return nil, err
	}
	pref := f.preferredSpan(day)
	if !busy {
		return []time.Time{pref.start, pref.start.Add(time.Hour), pref.start.Add(2 * time.Hour)}, nil
	}

	need := minutes(requiredMinutes)
	var inside []span
	for _, g := range gaps {
		inside = append(inside, g.intersect(pref))
	}
	if slots := fill(inside, need); len(slots) > 0 {
		return slots, nil
	}
	return fill(gaps, need), nil
}

// fill proposes hourly start times inside each sufficiently large gap.
func fill(gaps []span, need time.Duration) []time.Time {
	var slots []time.Time
	for _, g := range gaps {
		for at := g.start; !at.Add(need).After(g.end); at = at.Add(time.Hour) {
			slots = append(slots, at)
			if len(slots) == MaxSuggestions {
				return slots
			}
		}
	}
	return slots
}

// gaps returns the free spans of the day containing date, in order. busy is
// false when the calendar reported nothing for the day.
func (f *Finder) gaps(ctx context.Context, personID int64, date time.Time) (span, []span, bool, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	day := span{start: start, end: start.AddDate(0, 0, 1)}

	intervals, err := f.calendar.BusyIntervals(ctx, personID, day.start, day.end)
	if err != nil {
		return day, nil, false, fmt.Errorf("busy intervals for %d: %w", personID, err)
	}
	if len(intervals) == 0 {
		return day, []span{day}, false, nil
	}

	blocks := make([]span, 0, len(intervals))
	for _, iv := range intervals {
		b := span{start: iv.Start, end: day.end}
		switch {
		case iv.AllDay:
			b = day
		case iv.End != nil:
			b.end = *iv.End
		}
		b = b.intersect(day)
		if b.length() > 0 {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return day, []span{day}, false, nil
	}
	slices.SortFunc(blocks, func(a, b span) int { return a.start.Compare(b.start) })

	var free []span
	cursor := day.start
	for _, b := range blocks {
		if b.start.After(cursor) {
			free = append(free, span{start: cursor, end: b.start})
		}
		if b.end.After(cursor) {
			cursor = b.end
		}
	}
	if day.end.After(cursor) {
		free = append(free, span{start: cursor, end: day.end})
	}
	return day, free, true, nil
}

func (f *Finder) preferredSpan(day span) span {
	d := day.start
	at := func(off time.Duration) time.Time {
		h := int(off / time.Hour)
		m := int((off % time.Hour) / time.Minute)
		return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, d.Location())
	}
	return span{start: at(f.preferred.Start), end: at(f.preferred.End)}
}

func minutes(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Minute
}
