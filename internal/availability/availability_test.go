package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/testutil"
)

var day = time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func setup(t *testing.T) (*testutil.Directory, int64, *Finder) {
	t.Helper()
	dir := testutil.NewDirectory()
	id := dir.AddMember(1, "Ada", model.ClassParent)
	return dir, id, NewFinder(dir, DefaultPreferred)
}

func TestNoBusyIntervalsIsAvailable(t *testing.T) {
	_, id, f := setup(t)
	ctx := context.Background()

	ok, err := f.HasAvailability(ctx, id, day, 600)
	require.NoError(t, err)
	assert.True(t, ok)

	slots, err := f.SuggestSlots(ctx, id, day.Add(15*time.Hour), 30)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(8, 0), at(9, 0), at(10, 0)}, slots)
}

func TestGapBetweenIntervals(t *testing.T) {
	dir, id, f := setup(t)
	ctx := context.Background()
	dir.AddBusy(id, at(0, 0), at(12, 0))
	dir.AddBusy(id, at(13, 0), at(23, 59))

	ok, err := f.HasAvailability(ctx, id, day, 60)
	require.NoError(t, err)
	assert.True(t, ok, "a gap exactly equal to the requirement is sufficient")

	ok, err = f.HasAvailability(ctx, id, day, 61)
	require.NoError(t, err)
	assert.False(t, ok)

	slots, err := f.SuggestSlots(ctx, id, day, 60)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(12, 0)}, slots)
}

func TestGapBeforeFirstAndAfterLast(t *testing.T) {
	dir, id, f := setup(t)
	ctx := context.Background()
	dir.AddBusy(id, at(9, 0), at(18, 30))

	slots, err := f.SuggestSlots(ctx, id, day, 45)
	require.NoError(t, err)
	// 08:00-09:00 fits one slot, 18:30-20:00 fits 18:30 only.
	assert.Equal(t, []time.Time{at(8, 0), at(18, 30)}, slots)
}

func TestOverlappingIntervals(t *testing.T) {
	dir, id, f := setup(t)
	ctx := context.Background()
	dir.AddBusy(id, at(7, 0), at(12, 0))
	dir.AddBusy(id, at(10, 0), at(11, 0))
	dir.AddBusy(id, at(11, 30), at(20, 0))

	ok, err := f.HasAvailability(ctx, id, day, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenEndedIntervalBlocksRestOfDay(t *testing.T) {
	dir, id, f := setup(t)
	ctx := context.Background()
	dir.AddBusy(id, at(8, 30), time.Time{})

	ok, err := f.HasAvailability(ctx, id, day, 30)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.HasAvailability(ctx, id, day, 31)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllDayBlocksEverything(t *testing.T) {
	dir, id, f := setup(t)
	ctx := context.Background()
	dir.AddAllDay(id, day)

	ok, err := f.HasAvailability(ctx, id, day, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	slots, err := f.SuggestSlots(ctx, id, day, 1)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotsFallBackOutsidePreferredHours(t *testing.T) {
	dir, id, f := setup(t)
	ctx := context.Background()
	dir.AddBusy(id, at(6, 0), at(21, 0))

	ok, err := f.HasAvailability(ctx, id, day, 60)
	require.NoError(t, err)
	assert.False(t, ok, "no preferred-hours gap")

	slots, err := f.SuggestSlots(ctx, id, day, 60)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(0, 0), at(1, 0), at(2, 0)}, slots)
}

func TestInvalidPreferredHoursUseDefault(t *testing.T) {
	f := NewFinder(testutil.NewDirectory(), Hours{Start: 10 * time.Hour, End: 9 * time.Hour})
	assert.Equal(t, DefaultPreferred, f.preferred)
}
