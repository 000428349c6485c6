package recurrence

import (
	"errors"
	"slices"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestParseErrorsWrapInvalidRule(t *testing.T) {
	for _, input := range []string{"", "FREQ=NEVER", "INTERVAL=2", "FREQ=DAILY;BYDAY"} {
		_, err := Parse(input)
		if !errors.Is(err, ErrInvalidRule) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidRule", input, err)
		}
	}
}

func TestParseAcceptsPrefixAndLowercase(t *testing.T) {
	r, err := Parse("RRULE:freq=weekly;byday=mo")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if r.Freq != Weekly || len(r.ByDay) != 1 || r.ByDay[0] != time.Monday {
		t.Errorf("got %+v", r)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(""); err != nil {
		t.Errorf("Validate(empty) = %v, want nil", err)
	}
	if err := Validate("FREQ=DAILY"); err != nil {
		t.Errorf("Validate(daily) = %v, want nil", err)
	}
	if err := Validate("FREQ=SOMETIMES"); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("Validate(bad) = %v, want ErrInvalidRule", err)
	}
}

func TestExpandCapsMinutelyRule(t *testing.T) {
	anchor := d(2026, 1, 1, 0)
	from := anchor
	to := anchor.AddDate(1, 0, 0)

	got, err := Expand("FREQ=MINUTELY", anchor, from, to, 365)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 365 {
		t.Fatalf("got %d occurrences, want exactly 365", len(got))
	}
	if !got[364].Equal(anchor.Add(364 * time.Minute)) {
		t.Errorf("last = %v, want %v", got[364], anchor.Add(364*time.Minute))
	}
}

func TestExpandSecondlyFarWindowTerminates(t *testing.T) {
	anchor := d(2020, 1, 1, 0)
	from := d(2026, 3, 1, 0)
	to := from.Add(10 * time.Second)

	got, err := Expand("FREQ=SECONDLY", anchor, from, to, 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d occurrences, want 10", len(got))
	}
	if !got[0].Equal(from) {
		t.Errorf("first = %v, want %v", got[0], from)
	}
}

func TestExpandDefaultLimit(t *testing.T) {
	anchor := d(2026, 1, 1, 8)
	got, err := Expand("FREQ=HOURLY", anchor, anchor, anchor.AddDate(1, 0, 0), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != DefaultLimit {
		t.Errorf("got %d occurrences, want %d", len(got), DefaultLimit)
	}
}

func TestExpandInvalidRule(t *testing.T) {
	anchor := d(2026, 1, 1, 8)
	got, err := Expand("FREQ=DAILY;INTERVAL=-1", anchor, anchor, anchor.AddDate(0, 1, 0), 0)
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("error = %v, want ErrInvalidRule", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d occurrences, want none", len(got))
	}
}

func TestExpandEmptyRuleIsAnchor(t *testing.T) {
	anchor := d(2026, 2, 10, 9)

	got, err := Expand("", anchor, d(2026, 2, 1, 0), d(2026, 3, 1, 0), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 1 || !got[0].Equal(anchor) {
		t.Errorf("got %v, want [%v]", got, anchor)
	}

	got, _ = Expand("", anchor, d(2026, 3, 1, 0), d(2026, 4, 1, 0), 0)
	if len(got) != 0 {
		t.Errorf("anchor outside window: got %v, want none", got)
	}

	// The window is half-open.
	got, _ = Expand("", anchor, d(2026, 2, 1, 0), anchor, 0)
	if len(got) != 0 {
		t.Errorf("anchor at window end: got %v, want none", got)
	}
}

func TestOccurrencesRestartable(t *testing.T) {
	r, _ := Parse("FREQ=WEEKLY;BYDAY=MO,TH")
	seq := r.Occurrences(d(2026, 2, 2, 18), d(2026, 2, 1, 0), d(2026, 3, 1, 0), 0)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if len(first) != 8 {
		t.Fatalf("got %d occurrences, want 8", len(first))
	}
	if !slices.EqualFunc(first, second, time.Time.Equal) {
		t.Errorf("second iteration differs: %v vs %v", first, second)
	}
}

func TestOccurrencesAscendingUnique(t *testing.T) {
	// Duplicate BYDAY entries must not produce duplicate timestamps.
	r, _ := Parse("FREQ=WEEKLY;BYDAY=WE,MO,WE")
	got := slices.Collect(r.Occurrences(d(2026, 2, 2, 7), d(2026, 2, 1, 0), d(2026, 2, 16, 0), 0))
	if len(got) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].After(got[i-1]) {
			t.Errorf("occ[%d] = %v not after %v", i, got[i], got[i-1])
		}
	}
}

func TestCountIncludesOccurrencesBeforeWindow(t *testing.T) {
	// COUNT=10 from Jan 1 ends on Jan 10 even when the window opens on Jan 5.
	got, err := Expand("FREQ=DAILY;COUNT=10", d(2026, 1, 1, 9), d(2026, 1, 5, 0), d(2026, 2, 1, 0), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("got %d occurrences, want 6 (Jan 5-10)", len(got))
	}
	if got[5].Day() != 10 {
		t.Errorf("last day = %d, want 10", got[5].Day())
	}
}

func TestCountWithFastForwardedMinutes(t *testing.T) {
	anchor := d(2026, 1, 1, 0)
	got, err := Expand("FREQ=MINUTELY;COUNT=100", anchor, anchor.Add(95*time.Minute), anchor.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d occurrences, want 5", len(got))
	}
}

func TestUntilDateOnlyIsInclusive(t *testing.T) {
	got, err := Expand("FREQ=DAILY;UNTIL=20260205", d(2026, 2, 1, 18), d(2026, 2, 1, 0), d(2026, 3, 1, 0), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d occurrences, want 5 (Feb 1-5)", len(got))
	}
}

func TestUntilDateOnlyFollowsAnchorZone(t *testing.T) {
	tests := []struct {
		zone string
		hour int
	}{
		{"America/Los_Angeles", 18}, // west of UTC: Feb 5 18:00 is Feb 6 in UTC
		{"Asia/Tokyo", 8},           // east of UTC: Feb 6 08:00 is still Feb 5 in UTC
	}
	for _, tt := range tests {
		t.Run(tt.zone, func(t *testing.T) {
			loc, err := time.LoadLocation(tt.zone)
			if err != nil {
				t.Fatalf("load %s: %v", tt.zone, err)
			}
			anchor := time.Date(2026, 2, 1, tt.hour, 0, 0, 0, loc)
			from := time.Date(2026, 2, 1, 0, 0, 0, 0, loc)

			got, err := Expand("FREQ=DAILY;UNTIL=20260205", anchor, from, from.AddDate(0, 1, 0), 0)
			if err != nil {
				t.Fatalf("Expand error: %v", err)
			}
			if len(got) != 5 {
				t.Fatalf("got %d occurrences, want 5 (Feb 1-5)", len(got))
			}
			if last := got[4]; last.Day() != 5 || last.Hour() != tt.hour {
				t.Errorf("last = %v, want Feb 5 %02d:00", last, tt.hour)
			}
		})
	}
}

func TestParseOrdinalByDay(t *testing.T) {
	r, err := Parse("FREQ=MONTHLY;BYDAY=1MO,-1FR,WE")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []NthDay{{N: 1, Day: time.Monday}, {N: -1, Day: time.Friday}}
	if !slices.Equal(r.ByNthDay, want) {
		t.Errorf("ByNthDay = %v, want %v", r.ByNthDay, want)
	}
	if !slices.Equal(r.ByDay, []time.Weekday{time.Wednesday}) {
		t.Errorf("ByDay = %v, want [Wednesday]", r.ByDay)
	}

	r, err = Parse("FREQ=MONTHLY;BYMONTHDAY=-1")
	if err != nil || r.ByMonthDay != -1 {
		t.Errorf("BYMONTHDAY=-1: rule %+v, error %v", r, err)
	}
}

func TestMonthlyOrdinalWeekdays(t *testing.T) {
	tests := []struct {
		rule string
		want []time.Time
	}{
		// First Monday of March and April 2026.
		{"FREQ=MONTHLY;BYDAY=1MO", []time.Time{d(2026, 3, 2, 19), d(2026, 4, 6, 19)}},
		// Last Friday.
		{"FREQ=MONTHLY;BYDAY=-1FR", []time.Time{d(2026, 3, 27, 19), d(2026, 4, 24, 19)}},
		// Second Tuesday and second to last Thursday.
		{"FREQ=MONTHLY;BYDAY=2TU,-2TH", []time.Time{
			d(2026, 3, 10, 19), d(2026, 3, 19, 19), d(2026, 4, 14, 19), d(2026, 4, 23, 19),
		}},
	}
	for _, tt := range tests {
		got, err := Expand(tt.rule, d(2026, 3, 1, 19), d(2026, 3, 1, 0), d(2026, 5, 1, 0), 0)
		if err != nil {
			t.Fatalf("Expand(%q) error: %v", tt.rule, err)
		}
		if !slices.EqualFunc(got, tt.want, time.Time.Equal) {
			t.Errorf("Expand(%q) = %v, want %v", tt.rule, got, tt.want)
		}
	}
}

func TestMonthlyLastDayOfMonth(t *testing.T) {
	got, err := Expand("FREQ=MONTHLY;BYMONTHDAY=-1", d(2026, 1, 1, 9), d(2026, 1, 1, 0), d(2026, 5, 1, 0), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	want := []int{31, 28, 31, 30}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(got), len(want))
	}
	for i, occ := range got {
		if occ.Day() != want[i] || occ.Month() != time.Month(i+1) {
			t.Errorf("occ[%d] = %v, want day %d of month %d", i, occ, want[i], i+1)
		}
	}
}

func TestSubDailyByDayFarAnchor(t *testing.T) {
	// Anchored on Monday Jan 3, 2000; the window is Monday Mar 2, 2026.
	anchor := d(2000, 1, 3, 0)
	from := d(2026, 3, 2, 0)

	got, err := Expand("FREQ=HOURLY;BYDAY=MO", anchor, from, from.AddDate(0, 0, 2), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 24 {
		t.Fatalf("got %d occurrences, want 24 (every hour of Monday)", len(got))
	}
	if !got[0].Equal(from) || !got[23].Equal(from.Add(23*time.Hour)) {
		t.Errorf("range = %v .. %v", got[0], got[23])
	}

	got, err = Expand("FREQ=MINUTELY;INTERVAL=30;BYDAY=MO", anchor, from, from.AddDate(0, 0, 1), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 48 {
		t.Errorf("got %d occurrences, want 48", len(got))
	}
}

func TestMonthlyByDay(t *testing.T) {
	// Every Saturday of March 2026: 7, 14, 21, 28.
	got, err := Expand("FREQ=MONTHLY;BYDAY=SA", d(2026, 3, 1, 10), d(2026, 3, 1, 0), d(2026, 4, 1, 0), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	want := []int{7, 14, 21, 28}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(got), len(want))
	}
	for i, occ := range got {
		if occ.Day() != want[i] || occ.Hour() != 10 {
			t.Errorf("occ[%d] = %v, want March %d 10:00", i, occ, want[i])
		}
	}
}

func TestDailyByDayFilter(t *testing.T) {
	// Weekdays only over one week starting Monday Feb 2.
	got, err := Expand("FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR", d(2026, 2, 2, 7), d(2026, 2, 2, 0), d(2026, 2, 9, 0), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d occurrences, want 5", len(got))
	}
}

func TestWeeklyFarWindowFastForward(t *testing.T) {
	anchor := d(2000, 1, 4, 10) // Tuesday
	got, err := Expand("FREQ=WEEKLY", anchor, d(2026, 2, 1, 0), d(2026, 3, 1, 0), 0)
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	want := []int{3, 10, 17, 24}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(got), len(want))
	}
	for i, occ := range got {
		if occ.Day() != want[i] {
			t.Errorf("occ[%d] day = %d, want %d", i, occ.Day(), want[i])
		}
	}
}

func TestDescribeSubDaily(t *testing.T) {
	r, _ := Parse("FREQ=MINUTELY;INTERVAL=15")
	if got := r.Describe(); got != "Repeats every 15 minutes" {
		t.Errorf("Describe() = %q", got)
	}
}
