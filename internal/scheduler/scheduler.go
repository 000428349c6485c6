// Package scheduler runs occurrence generation for every family on a fixed
// interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/rota/internal/fairness"
	"github.com/dukerupert/rota/internal/generator"
	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/workload"
)

type Families interface {
	List(ctx context.Context) ([]model.Family, error)
}

type Generator interface {
	Generate(ctx context.Context, familyID int64, w generator.Window) ([]model.TaskOccurrence, error)
}

type Reporter interface {
	Report(ctx context.Context, familyID int64, weekStart time.Time) (fairness.Report, error)
}

// FairnessSink receives the fairness score computed after each family run.
type FairnessSink interface {
	FairnessScored(familyID int64, score float64)
}

type Config struct {
	Interval   time.Duration
	Horizon    time.Duration
	RunTimeout time.Duration
}

// Scheduler periodically generates occurrences from now to now+Horizon.
type Scheduler struct {
	mu       sync.RWMutex
	families Families
	gen      Generator
	reporter Reporter
	sink     FairnessSink
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a generation scheduler. reporter and sink may be nil, in which
// case no fairness scores are published.
func New(families Families, gen Generator, reporter Reporter, sink FairnessSink, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 14 * 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Second
	}
	return &Scheduler{
		families: families,
		gen:      gen,
		reporter: reporter,
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.RunOnce(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce generates occurrences for every family. Failures are logged and do
// not stop other families.
func (s *Scheduler) RunOnce(ctx context.Context) {
	families, err := s.families.List(ctx)
	if err != nil {
		s.logger.Error("list families", "error", err)
		return
	}

	for _, f := range families {
		if ctx.Err() != nil {
			return
		}
		s.runFamily(ctx, f)
	}
}

func (s *Scheduler) runFamily(ctx context.Context, family model.Family) {
	familyID := family.ID
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	now := s.now()
	w := generator.Window{From: now, To: now.Add(s.cfg.Horizon)}
	created, err := s.gen.Generate(ctx, familyID, w)
	if err != nil {
		s.logger.Warn("generation run finished with errors",
			"family_id", familyID,
			"created", len(created),
			"error", err)
	}

	if s.reporter == nil || s.sink == nil {
		return
	}
	// The reported week is the family's current week, not the server's.
	report, err := s.reporter.Report(ctx, familyID, workload.WeekStart(now.In(family.Location())))
	if err != nil {
		s.logger.Warn("fairness report", "family_id", familyID, "error", err)
		return
	}
	s.sink.FairnessScored(familyID, report.Score)
}
