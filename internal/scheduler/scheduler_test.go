package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/rota/internal/fairness"
	"github.com/dukerupert/rota/internal/generator"
	"github.com/dukerupert/rota/internal/model"
)

type fakeFamilies struct {
	families []model.Family
	err      error
}

func (f fakeFamilies) List(context.Context) ([]model.Family, error) { return f.families, f.err }

func utcFamilies(ids ...int64) fakeFamilies {
	var f fakeFamilies
	for _, id := range ids {
		f.families = append(f.families, model.Family{ID: id, Timezone: "UTC"})
	}
	return f
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   map[int64][]generator.Window
	failFor int64
}

func (g *fakeGenerator) Generate(ctx context.Context, familyID int64, w generator.Window) ([]model.TaskOccurrence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[int64][]generator.Window)
	}
	g.calls[familyID] = append(g.calls[familyID], w)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("run without deadline")
	}
	if familyID == g.failFor {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func (g *fakeGenerator) count(familyID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls[familyID])
}

type fakeReporter struct {
	mu    sync.Mutex
	weeks map[int64]time.Time
}

func (r *fakeReporter) Report(_ context.Context, familyID int64, weekStart time.Time) (fairness.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.weeks == nil {
		r.weeks = make(map[int64]time.Time)
	}
	r.weeks[familyID] = weekStart
	return fairness.Report{FamilyID: familyID, WeekStart: weekStart, Score: 0.5}, nil
}

type fakeSink struct {
	mu     sync.Mutex
	scores map[int64]float64
}

func (s *fakeSink) FairnessScored(familyID int64, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scores == nil {
		s.scores = make(map[int64]float64)
	}
	s.scores[familyID] = score
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceCoversEveryFamily(t *testing.T) {
	gen := &fakeGenerator{failFor: 2}
	sink := &fakeSink{}
	s := New(utcFamilies(1, 2, 3), gen, &fakeReporter{}, sink,
		Config{Horizon: 48 * time.Hour, RunTimeout: time.Second}, discard())
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.RunOnce(context.Background())

	for _, id := range []int64{1, 2, 3} {
		require.Equal(t, 1, gen.count(id), "family %d", id)
	}
	w := gen.calls[1][0]
	assert.True(t, w.From.Equal(now))
	assert.True(t, w.To.Equal(now.Add(48*time.Hour)))
	assert.Equal(t, map[int64]float64{1: 0.5, 2: 0.5, 3: 0.5}, sink.scores)
}

func TestRunOnceListError(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(fakeFamilies{err: errors.New("db down")}, gen, nil, nil, Config{}, discard())

	s.RunOnce(context.Background())
	assert.Empty(t, gen.calls)
}

func TestStartStop(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(utcFamilies(1), gen, nil, nil, Config{Interval: 10 * time.Millisecond}, discard())

	s.Start(context.Background())
	require.Eventually(t, func() bool { return gen.count(1) >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	n := gen.count(1)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, gen.count(1), "no runs after Stop")
}

func TestFairnessWeekFollowsFamilyTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	families := fakeFamilies{families: []model.Family{
		{ID: 1, Timezone: "Asia/Tokyo"},
		{ID: 2, Timezone: "America/Los_Angeles"},
	}}
	reporter := &fakeReporter{}
	s := New(families, &fakeGenerator{}, reporter, &fakeSink{}, Config{RunTimeout: time.Second}, discard())
	// Sunday 20:00 UTC is already Monday morning in Tokyo and still Sunday
	// noon in Los Angeles.
	s.now = func() time.Time { return time.Date(2026, 3, 8, 20, 0, 0, 0, time.UTC) }

	s.RunOnce(context.Background())

	assert.True(t, reporter.weeks[1].Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, tokyo)), "tokyo week = %v", reporter.weeks[1])
	assert.True(t, reporter.weeks[2].Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, la)), "los angeles week = %v", reporter.weeks[2])
}
