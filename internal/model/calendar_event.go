package model

import "time"

type CalendarEvent struct {
	ID             int64      `json:"id"`
	FamilyID       int64      `json:"family_id"`
	Title          string     `json:"title"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	AllDay         bool       `json:"all_day"`
	FamilyMemberID *int64     `json:"family_member_id"`
	RecurrenceRule string     `json:"recurrence_rule"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BusyInterval is a span during which a family member is unavailable.
// A nil End means busy until the end of the day.
type BusyInterval struct {
	Start  time.Time  `json:"start"`
	End    *time.Time `json:"end"`
	AllDay bool       `json:"all_day"`
}
