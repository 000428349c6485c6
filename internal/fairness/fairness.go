// Package fairness measures how evenly a family's weekly work is spread.
package fairness

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/rota/internal/capacity"
	"github.com/dukerupert/rota/internal/model"
)

type Members interface {
	ListMembers(ctx context.Context, familyID int64) ([]model.FamilyMember, error)
}

type Workloads interface {
	Workload(ctx context.Context, personID int64, weekStart time.Time) (float64, error)
}

// Report is the fairness picture of one family for one week.
type Report struct {
	FamilyID  int64             `json:"family_id"`
	WeekStart time.Time         `json:"week_start"`
	Loads     map[int64]float64 `json:"loads"`
	Score     float64           `json:"score"`
}

type Scorer struct {
	members   Members
	capacity  capacity.Table
	workloads Workloads
}

func NewScorer(members Members, table capacity.Table, workloads Workloads) *Scorer {
	return &Scorer{members: members, capacity: table, workloads: workloads}
}

// Score returns the workload of every member with a non-zero capacity.
func (s *Scorer) Score(ctx context.Context, familyID int64, weekStart time.Time) (map[int64]float64, error) {
	members, err := s.members.ListMembers(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("list members of family %d: %w", familyID, err)
	}

	loads := make(map[int64]float64, len(members))
	for _, m := range members {
		if s.capacity.Excluded(m.Class) {
			continue
		}
		load, err := s.workloads.Workload(ctx, m.ID, weekStart)
		if err != nil {
			return nil, fmt.Errorf("workload of member %d: %w", m.ID, err)
		}
		loads[m.ID] = load
	}
	return loads, nil
}

// Report bundles Score with the family's Gini fairness for the week.
func (s *Scorer) Report(ctx context.Context, familyID int64, weekStart time.Time) (Report, error) {
	loads, err := s.Score(ctx, familyID, weekStart)
	if err != nil {
		return Report{}, err
	}
	values := make([]float64, 0, len(loads))
	for _, v := range loads {
		values = append(values, v)
	}
	return Report{
		FamilyID:  familyID,
		WeekStart: weekStart,
		Loads:     loads,
		Score:     GiniFairness(values),
	}, nil
}

// GiniFairness returns 1 - G for the bias-corrected Gini coefficient
// G = sum_i sum_j |x_i - x_j| / (2 n (n-1) mean), clamped to [0, 1].
// Equal loads score 1. Fewer than two loads, or loads that are all zero,
// also score 1.
func GiniFairness(loads []float64) float64 {
	n := len(loads)
	if n <= 1 {
		return 1
	}

	var sum float64
	for _, x := range loads {
		sum += x
	}
	if sum == 0 {
		return 1
	}
	mean := sum / float64(n)

	var diff float64
	for _, xi := range loads {
		for _, xj := range loads {
			diff += math.Abs(xi - xj)
		}
	}
	g := diff / (2 * float64(n) * float64(n-1) * mean)

	return min(max(1-math.Abs(g), 0), 1)
}
