package model

import (
	"fmt"
	"time"
)

// PersonClass groups family members by weekly time budget.
type PersonClass string

const (
	ClassChild  PersonClass = "child"
	ClassTeen   PersonClass = "teen"
	ClassParent PersonClass = "parent"
	ClassHelper PersonClass = "helper"
)

func ParsePersonClass(s string) (PersonClass, error) {
	switch c := PersonClass(s); c {
	case ClassChild, ClassTeen, ClassParent, ClassHelper:
		return c, nil
	}
	return "", fmt.Errorf("unknown person class %q", s)
}

type FamilyMember struct {
	ID          int64       `json:"id"`
	FamilyID    int64       `json:"family_id"`
	Name        string      `json:"name"`
	Class       PersonClass `json:"class"`
	Color       string      `json:"color"`
	AvatarEmoji string      `json:"avatar_emoji"`
	SortOrder   int         `json:"sort_order"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
