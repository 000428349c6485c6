package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/rotation"
	"github.com/dukerupert/rota/internal/snapshot"
)

func TestPrometheusCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.OccurrenceGenerated(model.RotationRoundRobin)
	p.OccurrenceGenerated(model.RotationRoundRobin)
	p.OccurrenceGenerated(model.RotationFairness)
	p.DuplicateSkipped()
	p.RotationConflict()
	p.AssigneeSelected(model.RotationFairness, rotation.ReasonFallbackFirst)
	p.RunFinished(20*time.Millisecond, false)
	p.RunFinished(time.Second, true)
	p.FairnessScored(7, 0.8)

	last := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	p.SnapshotStatusChanged(snapshot.Status{State: snapshot.StateRunning})
	p.SnapshotStatusChanged(snapshot.Status{State: snapshot.StateIdle, LastSnapshot: &last})
	p.SnapshotStatusChanged(snapshot.Status{State: snapshot.StateError, Error: "upload: timeout"})

	assert.Equal(t, 2.0, testutil.ToFloat64(p.generated.WithLabelValues("round_robin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.generated.WithLabelValues("fairness")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.duplicates))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.selections.WithLabelValues("fairness", "fallback_first_member")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.runs.WithLabelValues("failure")))
	assert.Equal(t, 0.8, testutil.ToFloat64(p.fairness.WithLabelValues("7")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.snapshots.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.snapshots.WithLabelValues("failure")))
	assert.Equal(t, float64(last.Unix()), testutil.ToFloat64(p.lastSnap))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 9)
}

func TestNewPrometheusDefaults(t *testing.T) {
	p := NewPrometheus(nil, "")
	assert.Equal(t, "rota", p.namespace)
	assert.Equal(t, prometheus.DefaultRegisterer, p.reg)
}
