// Package rotation chooses who is assigned the next occurrence of a task
// template.
//
// Strategies form a closed set (see model.RotationStrategy) and Select
// dispatches over them exhaustively:
//   - manual: never assigns automatically
//   - random: uniform choice among eligible pool members
//   - round_robin: walks the pool from the template's persisted cursor and
//     returns the advanced cursor for the caller to store atomically
//   - fairness: least-loaded available member under the saturation threshold
//
// A member whose class has no weekly capacity is never selected by any
// strategy.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dukerupert/rota/internal/capacity"
	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/workload"
)

// DefaultSaturation is the workload fraction at which a member stops being a
// fairness candidate.
const DefaultSaturation = 0.9

var ErrUnknownStrategy = errors.New("unknown rotation strategy")

type Members interface {
	GetMember(ctx context.Context, id int64) (*model.FamilyMember, error)
}

type Workloads interface {
	Workload(ctx context.Context, personID int64, weekStart time.Time) (float64, error)
}

type Availability interface {
	HasAvailability(ctx context.Context, personID int64, date time.Time, requiredMinutes int) (bool, error)
}

// Reason explains the outcome of a selection.
type Reason string

const (
	ReasonSelected      Reason = "selected"
	ReasonManual        Reason = "manual"
	ReasonFallbackFirst Reason = "fallback_first_member"
	ReasonNoEligible    Reason = "no_eligible_member"
)

// Selection is the result of choosing an assignee. AssigneeID is nil when no
// automatic assignment was made. Rotation is set only by round-robin and holds
// the cursor that must be persisted together with the occurrence.
type Selection struct {
	AssigneeID *int64
	Strategy   model.RotationStrategy
	Reason     Reason
	Rotation   *model.RotationState
	Load       float64
}

// Assigned reports whether the selection produced an assignee.
func (s Selection) Assigned() bool {
	return s.AssigneeID != nil
}

type Engine struct {
	members      Members
	capacity     capacity.Table
	workloads    Workloads
	availability Availability
	saturation   float64
	logger       *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Engine)

// WithSaturation overrides DefaultSaturation.
func WithSaturation(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.saturation = threshold
		}
	}
}

// WithRandSource makes random selection reproducible.
func WithRandSource(src rand.Source) Option {
	return func(e *Engine) { e.rng = rand.New(src) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func NewEngine(members Members, table capacity.Table, workloads Workloads, availability Availability, opts ...Option) *Engine {
	e := &Engine{
		members:      members,
		capacity:     table,
		workloads:    workloads,
		availability: availability,
		saturation:   DefaultSaturation,
		logger:       slog.Default(),
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Select picks the assignee for the occurrence of tmpl due at due.
func (e *Engine) Select(ctx context.Context, tmpl model.TaskTemplate, due time.Time) (Selection, error) {
	sel := Selection{Strategy: tmpl.Strategy}

	var err error
	switch tmpl.Strategy {
	case model.RotationManual:
		sel.Reason = ReasonManual
		return sel, nil
	case model.RotationRandom:
		err = e.selectRandom(ctx, tmpl, &sel)
	case model.RotationRoundRobin:
		err = e.selectRoundRobin(ctx, tmpl, due, &sel)
	case model.RotationFairness:
		err = e.selectFairness(ctx, tmpl, due, &sel)
	default:
		return sel, fmt.Errorf("%w: %v", ErrUnknownStrategy, tmpl.Strategy)
	}
	if err != nil {
		return Selection{Strategy: tmpl.Strategy}, err
	}

	if sel.Assigned() {
		e.logger.Debug("assignee selected",
			"template_id", tmpl.ID,
			"strategy", tmpl.Strategy.String(),
			"assignee_id", *sel.AssigneeID,
			"reason", string(sel.Reason))
	} else {
		e.logger.Debug("no eligible assignee", "template_id", tmpl.ID, "strategy", tmpl.Strategy.String())
	}
	return sel, nil
}

func (e *Engine) selectRandom(ctx context.Context, tmpl model.TaskTemplate, sel *Selection) error {
	pool, err := e.eligible(ctx, tmpl)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		sel.Reason = ReasonNoEligible
		return nil
	}

	e.mu.Lock()
	id := pool[e.rng.IntN(len(pool))]
	e.mu.Unlock()

	sel.AssigneeID = &id
	sel.Reason = ReasonSelected
	return nil
}

func (e *Engine) selectRoundRobin(ctx context.Context, tmpl model.TaskTemplate, due time.Time, sel *Selection) error {
	n := len(tmpl.Pool)
	if n == 0 {
		sel.Reason = ReasonNoEligible
		return nil
	}

	start := ((tmpl.Rotation.Cursor % n) + n) % n
	for i := range n {
		idx := (start + i) % n
		id := tmpl.Pool[idx]
		ok, err := e.isEligible(ctx, tmpl.FamilyID, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		rotated := due
		next := tmpl.Rotation
		next.Cursor = (idx + 1) % n
		next.LastRotated = &rotated

		sel.AssigneeID = &id
		sel.Rotation = &next
		sel.Reason = ReasonSelected
		return nil
	}

	sel.Reason = ReasonNoEligible
	return nil
}

func (e *Engine) selectFairness(ctx context.Context, tmpl model.TaskTemplate, due time.Time, sel *Selection) error {
	pool, err := e.eligible(ctx, tmpl)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		sel.Reason = ReasonNoEligible
		return nil
	}

	week := workload.WeekStart(due)
	var (
		best     int64
		bestLoad float64
		found    bool
	)
	for _, id := range pool {
		load, err := e.workloads.Workload(ctx, id, week)
		if err != nil {
			return fmt.Errorf("workload for %d: %w", id, err)
		}
		if load >= e.saturation {
			continue
		}
		free, err := e.availability.HasAvailability(ctx, id, due, tmpl.EstimatedMinutes)
		if err != nil {
			return fmt.Errorf("availability for %d: %w", id, err)
		}
		if !free {
			continue
		}
		// Strict comparison keeps the earliest pool member on ties.
		if !found || load < bestLoad {
			best, bestLoad, found = id, load, true
		}
	}

	if !found {
		first := pool[0]
		sel.AssigneeID = &first
		sel.Reason = ReasonFallbackFirst
		return nil
	}
	sel.AssigneeID = &best
	sel.Load = bestLoad
	sel.Reason = ReasonSelected
	return nil
}

// eligible returns the pool members that may receive assignments, in pool
// order.
func (e *Engine) eligible(ctx context.Context, tmpl model.TaskTemplate) ([]int64, error) {
	var out []int64
	for _, id := range tmpl.Pool {
		ok, err := e.isEligible(ctx, tmpl.FamilyID, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *Engine) isEligible(ctx context.Context, familyID, id int64) (bool, error) {
	m, err := e.members.GetMember(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get member %d: %w", id, err)
	}
	if m == nil || m.FamilyID != familyID {
		return false, nil
	}
	return !e.capacity.Excluded(m.Class), nil
}
