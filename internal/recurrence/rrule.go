package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRule is returned for any recurrence rule that cannot be parsed.
var ErrInvalidRule = errors.New("invalid recurrence rule")

type Freq int

const (
	Secondly Freq = iota
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

var freqNames = map[Freq]string{
	Secondly: "SECONDLY",
	Minutely: "MINUTELY",
	Hourly:   "HOURLY",
	Daily:    "DAILY",
	Weekly:   "WEEKLY",
	Monthly:  "MONTHLY",
	Yearly:   "YEARLY",
}

var freqFromName = map[string]Freq{
	"SECONDLY": Secondly,
	"MINUTELY": Minutely,
	"HOURLY":   Hourly,
	"DAILY":    Daily,
	"WEEKLY":   Weekly,
	"MONTHLY":  Monthly,
	"YEARLY":   Yearly,
}

var dayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// NthDay is an ordinal BYDAY entry such as 1MO (first Monday) or -1FR (last
// Friday) of a month.
type NthDay struct {
	N   int // 1..5 from the start of the month, -1..-5 from its end
	Day time.Weekday
}

type Rule struct {
	Freq       Freq
	Interval   int            // default 1; 2 = biweekly when Freq=Weekly
	ByDay      []time.Weekday // WEEKLY: which days; other freqs: weekday filter
	ByNthDay   []NthDay       // MONTHLY only: nth weekday of the month
	ByMonthDay int            // for MONTHLY: day of month, negative counts from the end (0 = same as start)
	Count      int            // max occurrences counted from the anchor (0 = unlimited)
	Until      *time.Time     // inclusive upper bound (nil = no limit)
	// UntilDate marks a date-only UNTIL. Until then holds midnight UTC of that
	// civil date and is resolved to the end of the day in the anchor's zone.
	UntilDate bool
}

// Parse parses an RRULE string like "FREQ=WEEKLY;BYDAY=MO,WE;INTERVAL=2".
// An optional "RRULE:" prefix is accepted. Every error wraps ErrInvalidRule.
func Parse(rule string) (Rule, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(rule, "RRULE:")
	if rule == "" {
		return Rule{}, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}

	r := Rule{Interval: 1}
	var hasFreq bool
	seen := make(map[string]bool)

	parts := strings.Split(strings.TrimSuffix(rule, ";"), ";")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Rule{}, fmt.Errorf("%w: invalid rule part %q", ErrInvalidRule, part)
		}
		key, val := strings.ToUpper(strings.TrimSpace(kv[0])), strings.ToUpper(strings.TrimSpace(kv[1]))
		if seen[key] {
			return Rule{}, fmt.Errorf("%w: duplicate key %q", ErrInvalidRule, key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			f, ok := freqFromName[val]
			if !ok {
				return Rule{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, val)
			}
			r.Freq = f
			hasFreq = true

		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("%w: invalid interval %q", ErrInvalidRule, val)
			}
			r.Interval = n

		case "BYDAY":
			for _, d := range strings.Split(val, ",") {
				n, wd, err := parseDay(strings.TrimSpace(d))
				if err != nil {
					return Rule{}, err
				}
				if n == 0 {
					r.ByDay = append(r.ByDay, wd)
				} else {
					r.ByNthDay = append(r.ByNthDay, NthDay{N: n, Day: wd})
				}
			}

		case "BYMONTHDAY":
			n, err := strconv.Atoi(val)
			if err != nil || n == 0 || n < -31 || n > 31 {
				return Rule{}, fmt.Errorf("%w: invalid BYMONTHDAY %q", ErrInvalidRule, val)
			}
			r.ByMonthDay = n

		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("%w: invalid count %q", ErrInvalidRule, val)
			}
			r.Count = n

		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", val)
			if err != nil {
				t, err = time.Parse("20060102", val)
				if err != nil {
					return Rule{}, fmt.Errorf("%w: invalid UNTIL %q", ErrInvalidRule, val)
				}
				r.UntilDate = true
			}
			r.Until = &t

		case "WKST":
			if val != "MO" {
				return Rule{}, fmt.Errorf("%w: unsupported WKST %q", ErrInvalidRule, val)
			}

		default:
			return Rule{}, fmt.Errorf("%w: unsupported rule key %q", ErrInvalidRule, key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("%w: FREQ is required", ErrInvalidRule)
	}
	if len(r.ByNthDay) > 0 && r.Freq != Monthly {
		return Rule{}, fmt.Errorf("%w: ordinal BYDAY requires FREQ=MONTHLY", ErrInvalidRule)
	}
	if r.Count > 0 && r.Until != nil {
		return Rule{}, fmt.Errorf("%w: COUNT and UNTIL are mutually exclusive", ErrInvalidRule)
	}

	return r, nil
}

// parseDay parses a BYDAY entry with an optional signed ordinal prefix. n is
// 0 for a plain weekday.
func parseDay(s string) (int, time.Weekday, error) {
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("%w: unknown day %q", ErrInvalidRule, s)
	}
	code, prefix := s[len(s)-2:], s[:len(s)-2]
	wd, ok := dayNames[code]
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown day %q", ErrInvalidRule, s)
	}
	if prefix == "" {
		return 0, wd, nil
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n == 0 || n < -5 || n > 5 {
		return 0, 0, fmt.Errorf("%w: invalid ordinal in %q", ErrInvalidRule, s)
	}
	return n, wd, nil
}

// Validate reports whether rule would be accepted by Parse. An empty rule is
// valid and means "no recurrence".
func Validate(rule string) error {
	if strings.TrimSpace(rule) == "" {
		return nil
	}
	_, err := Parse(rule)
	return err
}

// String serializes the rule back to an RRULE string.
func (r Rule) String() string {
	var parts []string
	parts = append(parts, "FREQ="+freqNames[r.Freq])

	if r.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", r.Interval))
	}

	if len(r.ByDay) > 0 || len(r.ByNthDay) > 0 {
		var days []string
		for _, d := range r.ByDay {
			days = append(days, dayAbbrev[d])
		}
		for _, d := range r.ByNthDay {
			days = append(days, strconv.Itoa(d.N)+dayAbbrev[d.Day])
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}

	if r.ByMonthDay != 0 {
		parts = append(parts, fmt.Sprintf("BYMONTHDAY=%d", r.ByMonthDay))
	}

	if r.Count > 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", r.Count))
	}

	if r.Until != nil {
		if r.UntilDate {
			parts = append(parts, "UNTIL="+r.Until.Format("20060102"))
		} else {
			parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
		}
	}

	return strings.Join(parts, ";")
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	switch r.Freq {
	case Secondly:
		return plural("Repeats every second", "Repeats every %d seconds", r.Interval)
	case Minutely:
		return plural("Repeats every minute", "Repeats every %d minutes", r.Interval)
	case Hourly:
		return plural("Repeats hourly", "Repeats every %d hours", r.Interval)
	case Daily:
		return plural("Repeats daily", "Repeats every %d days", r.Interval) + r.onDays()
	case Weekly:
		prefix := "Repeats weekly"
		if r.Interval == 2 {
			prefix = "Repeats every 2 weeks"
		} else if r.Interval > 2 {
			prefix = fmt.Sprintf("Repeats every %d weeks", r.Interval)
		}
		return prefix + r.onDays()
	case Monthly:
		desc := plural("Repeats monthly", "Repeats every %d months", r.Interval)
		switch {
		case r.ByMonthDay == -1:
			desc += " on the last day"
		case r.ByMonthDay < 0:
			desc += fmt.Sprintf(" on day %d from the end", -r.ByMonthDay)
		case r.ByMonthDay > 0:
			desc += fmt.Sprintf(" on day %d", r.ByMonthDay)
		}
		return desc + r.onDays()
	case Yearly:
		return plural("Repeats yearly", "Repeats every %d years", r.Interval)
	}
	return ""
}

func (r Rule) onDays() string {
	if len(r.ByDay) == 0 && len(r.ByNthDay) == 0 {
		return ""
	}
	var names []string
	for _, d := range r.ByDay {
		names = append(names, d.String()[:3])
	}
	for _, d := range r.ByNthDay {
		names = append(names, "the "+ordinal(d.N)+" "+d.Day.String()[:3])
	}
	return " on " + strings.Join(names, ", ")
}

var ordinals = map[int]string{
	1: "first", 2: "second", 3: "third", 4: "fourth", 5: "fifth",
	-1: "last", -2: "second to last", -3: "third to last", -4: "fourth to last", -5: "fifth to last",
}

func ordinal(n int) string {
	if s, ok := ordinals[n]; ok {
		return s
	}
	return strconv.Itoa(n)
}

func plural(one, many string, n int) string {
	if n > 1 {
		return fmt.Sprintf(many, n)
	}
	return one
}
