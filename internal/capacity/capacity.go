// Package capacity maps a family member's class to a weekly time budget.
package capacity

import (
	"fmt"

	"github.com/dukerupert/rota/internal/model"
)

// Table is a weekly capacity budget in minutes per person class.
// A class missing from the table, or mapped to 0, is excluded from assignment.
type Table map[model.PersonClass]int

// Default returns the built-in weekly budgets.
func Default() Table {
	return Table{
		model.ClassChild:  120,
		model.ClassTeen:   240,
		model.ClassParent: 360,
		model.ClassHelper: 0,
	}
}

// Minutes returns the weekly budget for class, or 0 when unknown.
func (t Table) Minutes(class model.PersonClass) int {
	return t[class]
}

// Excluded reports whether members of class never receive assignments.
func (t Table) Excluded(class model.PersonClass) bool {
	return t.Minutes(class) <= 0
}

// WithOverrides returns a copy of t with the given class budgets replaced.
func (t Table) WithOverrides(overrides map[string]int) (Table, error) {
	out := make(Table, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for name, minutes := range overrides {
		class, err := model.ParsePersonClass(name)
		if err != nil {
			return nil, fmt.Errorf("capacity override: %w", err)
		}
		if minutes < 0 {
			return nil, fmt.Errorf("capacity override for %s: negative minutes %d", name, minutes)
		}
		out[class] = minutes
	}
	return out, nil
}
