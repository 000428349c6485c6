package model

import (
	"errors"
	"fmt"
	"time"
)

// RotationStrategy selects how a template's occurrences are assigned.
// The set is closed; callers switch over it exhaustively.
type RotationStrategy int

const (
	RotationManual RotationStrategy = iota
	RotationRoundRobin
	RotationFairness
	RotationRandom
)

var strategyNames = map[RotationStrategy]string{
	RotationManual:     "manual",
	RotationRoundRobin: "round_robin",
	RotationFairness:   "fairness",
	RotationRandom:     "random",
}

var strategyFromName = map[string]RotationStrategy{
	"manual":      RotationManual,
	"round_robin": RotationRoundRobin,
	"fairness":    RotationFairness,
	"random":      RotationRandom,
}

// ParseRotationStrategy converts a stored or submitted name to a strategy.
func ParseRotationStrategy(s string) (RotationStrategy, error) {
	st, ok := strategyFromName[s]
	if !ok {
		return RotationManual, fmt.Errorf("unknown rotation strategy %q", s)
	}
	return st, nil
}

func (s RotationStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RotationStrategy(%d)", int(s))
}

func (s RotationStrategy) MarshalText() ([]byte, error) {
	name, ok := strategyNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown rotation strategy %d", int(s))
	}
	return []byte(name), nil
}

func (s *RotationStrategy) UnmarshalText(b []byte) error {
	st, err := ParseRotationStrategy(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

var ErrInvalidRotationState = errors.New("invalid rotation state")

// RotationState is the persisted round-robin cursor for a template.
// Version increases on every write and guards concurrent advances.
type RotationState struct {
	Cursor      int        `json:"cursor"`
	LastRotated *time.Time `json:"last_rotated"`
	Version     int64      `json:"version"`
}

// Validate checks the cursor against a pool of the given size.
func (s RotationState) Validate(poolSize int) error {
	if s.Cursor < 0 {
		return fmt.Errorf("%w: negative cursor %d", ErrInvalidRotationState, s.Cursor)
	}
	if poolSize > 0 && s.Cursor >= poolSize {
		return fmt.Errorf("%w: cursor %d outside pool of %d", ErrInvalidRotationState, s.Cursor, poolSize)
	}
	if s.Version < 0 {
		return fmt.Errorf("%w: negative version %d", ErrInvalidRotationState, s.Version)
	}
	return nil
}

type TaskTemplate struct {
	ID               int64            `json:"id"`
	FamilyID         int64            `json:"family_id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Category         string           `json:"category"`
	RecurrenceRule   string           `json:"recurrence_rule"`
	Strategy         RotationStrategy `json:"strategy"`
	Rotation         RotationState    `json:"rotation"`
	Pool             []int64          `json:"pool"`
	EstimatedMinutes int              `json:"estimated_minutes"`
	Points           int              `json:"points"`
	RequiresApproval bool             `json:"requires_approval"`
	RequiresPhoto    bool             `json:"requires_photo"`
	DueAt            time.Time        `json:"due_at"`
	CompletedAt      *time.Time       `json:"completed_at"`
	CompletedBy      *int64           `json:"completed_by"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Active reports whether the series still produces occurrences.
func (t TaskTemplate) Active() bool {
	return t.CompletedAt == nil
}

// DueOn combines a calendar date with the template's due time-of-day.
func (t TaskTemplate) DueOn(date time.Time) time.Time {
	loc := t.DueAt.Location()
	date = date.In(loc)
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.DueAt.Hour(), t.DueAt.Minute(), t.DueAt.Second(), 0, loc)
}

// DateKey formats a time as the calendar date used to key generation records.
func (t TaskTemplate) DateKey(at time.Time) string {
	return at.In(t.DueAt.Location()).Format(DateLayout)
}
