package recurrence

import (
	"iter"
	"slices"
	"strings"
	"time"
)

// DefaultLimit caps the number of occurrences produced by a single expansion.
const DefaultLimit = 365

// maxScan bounds the number of recurrence periods examined per expansion, so
// rules whose matches are sparse or all before the window still terminate.
const maxScan = 200_000

// Occurrence represents a single generated occurrence of a recurring event.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Occurrences returns the occurrence times of r anchored at anchor that fall
// in [from, to), in ascending order and without duplicates. At most limit
// times are produced (DefaultLimit when limit <= 0). The sequence is
// recomputed from the anchor on every range, so it may be iterated any
// number of times.
func (r Rule) Occurrences(anchor, from, to time.Time, limit int) iter.Seq[time.Time] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return func(yield func(time.Time) bool) {
		it := newIterator(r, anchor)
		it.seek(from)

		var last time.Time
		n := 0
		for n < limit {
			t, ok := it.next()
			if !ok {
				return
			}
			if it.rule.Until != nil && t.After(*it.rule.Until) {
				return
			}
			if !t.Before(to) {
				return
			}
			if t.Before(from) {
				continue
			}
			if n > 0 && !t.After(last) {
				continue
			}
			last = t
			n++
			if !yield(t) {
				return
			}
		}
	}
}

// Expand parses rule and collects its occurrences in [from, to), capped at
// limit. An empty rule yields the anchor itself when it lies in the window.
// A malformed rule yields no occurrences and an error wrapping ErrInvalidRule.
func Expand(rule string, anchor, from, to time.Time, limit int) ([]time.Time, error) {
	if strings.TrimSpace(rule) == "" {
		if !anchor.Before(from) && anchor.Before(to) {
			return []time.Time{anchor}, nil
		}
		return nil, nil
	}

	r, err := Parse(rule)
	if err != nil {
		return nil, err
	}
	return slices.Collect(r.Occurrences(anchor, from, to, limit)), nil
}

// ExpandSpans generates the occurrences of a recurring event that overlap
// [rangeStart, rangeEnd). eventStart and eventEnd define the first
// occurrence's time span (used for duration).
func ExpandSpans(rule Rule, eventStart, eventEnd, rangeStart, rangeEnd time.Time, limit int) []Occurrence {
	duration := eventEnd.Sub(eventStart)
	var results []Occurrence

	// Occurrences starting up to one duration before the range can still overlap it.
	for start := range rule.Occurrences(eventStart, rangeStart.Add(-duration), rangeEnd, limit) {
		end := start.Add(duration)
		if end.After(rangeStart) || !start.Before(rangeStart) {
			results = append(results, Occurrence{Start: start, End: end})
		}
	}
	return results
}

type iterator struct {
	rule    Rule
	anchor  time.Time
	period  int         // index of the next recurrence period to expand
	pending []time.Time // candidates of the current period not yet returned
	matched int         // candidates returned so far, for COUNT
	scanned int
}

func newIterator(rule Rule, anchor time.Time) *iterator {
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	if rule.Until != nil && rule.UntilDate {
		// A date-only UNTIL includes that whole civil day where the series lives.
		u := rule.Until
		end := time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999_999_999, anchor.Location())
		rule.Until = &end
	}
	return &iterator{rule: rule, anchor: anchor}
}

func (it *iterator) next() (time.Time, bool) {
	for len(it.pending) == 0 {
		if it.scanned >= maxScan {
			return time.Time{}, false
		}
		it.scanned++
		it.pending = it.expandPeriod(it.period)
		it.period++
	}
	if it.rule.Count > 0 && it.matched >= it.rule.Count {
		return time.Time{}, false
	}
	t := it.pending[0]
	it.pending = it.pending[1:]
	it.matched++
	return t, true
}

// seek skips whole periods that end before from. Periods are only skipped
// when the number of matches they contain is known, so COUNT stays exact.
func (it *iterator) seek(from time.Time) {
	if !from.After(it.anchor) {
		return
	}
	r := it.rule
	var skip int

	switch r.Freq {
	// BYDAY only filters periods, so skipping is exact unless COUNT has to
	// know how many skipped periods matched.
	case Secondly, Minutely, Hourly:
		if len(r.ByDay) > 0 && r.Count > 0 {
			return
		}
		skip = int(from.Sub(it.anchor)/it.step()) - 1
	case Daily:
		if len(r.ByDay) > 0 && r.Count > 0 {
			return
		}
		skip = int(from.Sub(it.anchor).Hours()/24)/r.Interval - 1
	case Weekly:
		if r.Count > 0 {
			return
		}
		skip = int(from.Sub(it.anchor).Hours()/(24*7))/r.Interval - 1
	case Monthly:
		if r.Count > 0 {
			return
		}
		months := (from.Year()-it.anchor.Year())*12 + int(from.Month()-it.anchor.Month())
		skip = months/r.Interval - 1
	case Yearly:
		if r.Count > 0 {
			return
		}
		skip = (from.Year()-it.anchor.Year())/r.Interval - 1
	}

	if skip <= 0 {
		return
	}
	it.period = skip
	if r.Count > 0 {
		// Only single-match frequencies reach here.
		it.matched = skip
	}
}

func (it *iterator) step() time.Duration {
	unit := time.Second
	switch it.rule.Freq {
	case Minutely:
		unit = time.Minute
	case Hourly:
		unit = time.Hour
	}
	return unit * time.Duration(it.rule.Interval)
}

// expandPeriod returns the sorted candidates of period k that are not before
// the anchor and pass the BYDAY filter.
func (it *iterator) expandPeriod(k int) []time.Time {
	r := it.rule
	a := it.anchor
	var out []time.Time

	switch r.Freq {
	case Secondly, Minutely, Hourly:
		t := a.Add(it.step() * time.Duration(k))
		if it.dayAllowed(t.Weekday()) {
			out = append(out, t)
		}

	case Daily:
		t := a.AddDate(0, 0, k*r.Interval)
		if it.dayAllowed(t.Weekday()) {
			out = append(out, t)
		}

	case Weekly:
		monday := weekStart(a).AddDate(0, 0, 7*k*r.Interval)
		days := r.ByDay
		if len(days) == 0 {
			days = []time.Weekday{a.Weekday()}
		}
		offsets := make([]int, 0, len(days))
		for _, d := range days {
			offsets = append(offsets, mondayOffset(d))
		}
		slices.Sort(offsets)
		offsets = slices.Compact(offsets)
		for _, off := range offsets {
			out = append(out, it.atClock(monday.Year(), monday.Month(), monday.Day()+off))
		}

	case Monthly:
		first := time.Date(a.Year(), a.Month()+time.Month(k*r.Interval), 1, 0, 0, 0, 0, a.Location())
		year, month := first.Year(), first.Month()
		for d := 1; d <= daysInMonth(year, month); d++ {
			if it.monthDayMatches(year, month, d) {
				out = append(out, it.atClock(year, month, d))
			}
		}

	case Yearly:
		year := a.Year() + k*r.Interval
		t := it.atClock(year, a.Month(), a.Day())
		// Feb 29 in a non-leap year normalizes into March; skip those years.
		if t.Month() == a.Month() {
			out = append(out, t)
		}
	}

	// Drop candidates before the anchor (only the first period can have any).
	i := 0
	for i < len(out) && out[i].Before(a) {
		i++
	}
	return out[i:]
}

func (it *iterator) monthDayMatches(year int, month time.Month, day int) bool {
	r := it.rule
	last := daysInMonth(year, month)
	switch {
	case r.ByMonthDay > 0:
		return day == r.ByMonthDay && it.monthWeekdayMatches(year, month, day, last)
	case r.ByMonthDay < 0:
		return day == last+1+r.ByMonthDay && it.monthWeekdayMatches(year, month, day, last)
	case len(r.ByDay) > 0 || len(r.ByNthDay) > 0:
		return it.monthWeekdayMatches(year, month, day, last)
	default:
		return day == it.anchor.Day()
	}
}

// monthWeekdayMatches applies the plain and ordinal BYDAY filters to a day of
// a month with last days. No filter matches every day.
func (it *iterator) monthWeekdayMatches(year int, month time.Month, day, last int) bool {
	r := it.rule
	if len(r.ByDay) == 0 && len(r.ByNthDay) == 0 {
		return true
	}
	wd := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday()
	if slices.Contains(r.ByDay, wd) {
		return true
	}
	for _, nth := range r.ByNthDay {
		if nth.Day != wd {
			continue
		}
		if nth.N > 0 && (day-1)/7+1 == nth.N {
			return true
		}
		if nth.N < 0 && (last-day)/7+1 == -nth.N {
			return true
		}
	}
	return false
}

func (it *iterator) dayAllowed(wd time.Weekday) bool {
	return len(it.rule.ByDay) == 0 || slices.Contains(it.rule.ByDay, wd)
}

func (it *iterator) atClock(year int, month time.Month, day int) time.Time {
	a := it.anchor
	return time.Date(year, month, day, a.Hour(), a.Minute(), a.Second(), a.Nanosecond(), a.Location())
}

func mondayOffset(d time.Weekday) int {
	offset := int(d) - int(time.Monday)
	if offset < 0 {
		offset += 7 // Sunday
	}
	return offset
}

func weekStart(t time.Time) time.Time {
	monday := t.AddDate(0, 0, -mondayOffset(t.Weekday()))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
