// Package testutil provides in-memory collaborators for engine tests.
package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dukerupert/rota/internal/model"
)

// Directory is an in-memory set of family members, open work and calendar
// intervals. It satisfies the read-side interfaces of the workload,
// availability, rotation and fairness packages.
type Directory struct {
	mu      sync.RWMutex
	members map[int64]model.FamilyMember
	work    map[int64][]model.TaskOccurrence
	busy    map[int64][]model.BusyInterval
	nextID  int64
}

func NewDirectory() *Directory {
	return &Directory{
		members: make(map[int64]model.FamilyMember),
		work:    make(map[int64][]model.TaskOccurrence),
		busy:    make(map[int64][]model.BusyInterval),
	}
}

// AddMember registers a member of familyID and returns its id.
func (d *Directory) AddMember(familyID int64, name string, class model.PersonClass) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.members[d.nextID] = model.FamilyMember{
		ID:        d.nextID,
		FamilyID:  familyID,
		Name:      name,
		Class:     class,
		SortOrder: int(d.nextID),
	}
	return d.nextID
}

// AddWork assigns an open occurrence to personID.
func (d *Directory) AddWork(personID int64, due time.Time, minutes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := personID
	d.work[personID] = append(d.work[personID], model.TaskOccurrence{
		AssigneeID:       &id,
		DueAt:            due,
		Status:           model.OccurrencePending,
		EstimatedMinutes: minutes,
	})
}

// AddBusy records a busy interval for personID. A zero end means open-ended.
func (d *Directory) AddBusy(personID int64, start, end time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	iv := model.BusyInterval{Start: start}
	if !end.IsZero() {
		iv.End = &end
	}
	d.busy[personID] = append(d.busy[personID], iv)
}

// AddAllDay records an all-day busy interval on date.
func (d *Directory) AddAllDay(personID int64, date time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1)
	d.busy[personID] = append(d.busy[personID], model.BusyInterval{Start: start, End: &end, AllDay: true})
}

func (d *Directory) GetMember(_ context.Context, id int64) (*model.FamilyMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (d *Directory) ListMembers(_ context.Context, familyID int64) ([]model.FamilyMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []model.FamilyMember
	for _, m := range d.members {
		if m.FamilyID == familyID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b model.FamilyMember) int { return a.SortOrder - b.SortOrder })
	return out, nil
}

func (d *Directory) ListOpenAssigned(_ context.Context, personID int64, from, to time.Time) ([]model.TaskOccurrence, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []model.TaskOccurrence
	for _, o := range d.work[personID] {
		if o.Status.Open() && !o.DueAt.Before(from) && o.DueAt.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (d *Directory) BusyIntervals(_ context.Context, personID int64, from, to time.Time) ([]model.BusyInterval, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []model.BusyInterval
	for _, iv := range d.busy[personID] {
		end := iv.Start
		if iv.End != nil {
			end = *iv.End
		}
		if iv.Start.Before(to) && (!end.Before(from)) {
			out = append(out, iv)
		}
	}
	return out, nil
}
