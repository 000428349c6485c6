// Package metrics exposes generation and fairness events as Prometheus
// collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/rotation"
	"github.com/dukerupert/rota/internal/snapshot"
)

// Prometheus records generator events and family fairness scores.
// Collectors are registered on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	generated  *prometheus.CounterVec
	duplicates prometheus.Counter
	conflicts  prometheus.Counter
	selections *prometheus.CounterVec
	runs       *prometheus.CounterVec
	runLatency prometheus.Histogram
	fairness   *prometheus.GaugeVec
	snapshots  *prometheus.CounterVec
	lastSnap   prometheus.Gauge
}

// NewPrometheus uses prometheus.DefaultRegisterer when reg is nil and the
// namespace "rota" when namespace is empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "rota"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.generated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "generator",
			Name:      "occurrences_generated_total",
			Help:      "Occurrences materialized, by rotation strategy.",
		}, []string{"strategy"})

		p.duplicates = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "generator",
			Name:      "duplicates_skipped_total",
			Help:      "Candidate dates skipped because a generation record already existed.",
		})

		p.conflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "generator",
			Name:      "rotation_conflicts_total",
			Help:      "Materializations rejected because the rotation cursor moved.",
		})

		p.selections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "rotation",
			Name:      "selections_total",
			Help:      "Assignee selections by strategy and reason.",
		}, []string{"strategy", "reason"})

		p.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "generator",
			Name:      "runs_total",
			Help:      "Generation runs by result (success, failure).",
		}, []string{"result"})

		p.runLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "generator",
			Name:      "run_duration_seconds",
			Help:      "Duration of generation runs in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		})

		p.fairness = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "fairness",
			Name:      "score",
			Help:      "Latest Gini fairness score per family (1 = perfectly even).",
		}, []string{"family_id"})

		p.snapshots = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "snapshot",
			Name:      "runs_total",
			Help:      "Snapshot runs by result (success, failure).",
		}, []string{"result"})

		p.lastSnap = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "snapshot",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last uploaded snapshot.",
		})

		p.reg.MustRegister(
			p.generated, p.duplicates, p.conflicts, p.selections,
			p.runs, p.runLatency, p.fairness, p.snapshots, p.lastSnap,
		)
	})
}

func (p *Prometheus) OccurrenceGenerated(strategy model.RotationStrategy) {
	p.ensureRegistered()
	p.generated.WithLabelValues(strategy.String()).Inc()
}

func (p *Prometheus) DuplicateSkipped() {
	p.ensureRegistered()
	p.duplicates.Inc()
}

func (p *Prometheus) RotationConflict() {
	p.ensureRegistered()
	p.conflicts.Inc()
}

func (p *Prometheus) AssigneeSelected(strategy model.RotationStrategy, reason rotation.Reason) {
	p.ensureRegistered()
	p.selections.WithLabelValues(strategy.String(), string(reason)).Inc()
}

func (p *Prometheus) RunFinished(d time.Duration, failed bool) {
	p.ensureRegistered()
	result := "success"
	if failed {
		result = "failure"
	}
	p.runs.WithLabelValues(result).Inc()
	p.runLatency.Observe(d.Seconds())
}

// FairnessScored publishes the latest fairness score of a family.
func (p *Prometheus) FairnessScored(familyID int64, score float64) {
	p.ensureRegistered()
	p.fairness.WithLabelValues(strconv.FormatInt(familyID, 10)).Set(score)
}

// SnapshotStatusChanged matches snapshot.StatusCallback. Finished runs are
// counted; the running state is ignored.
func (p *Prometheus) SnapshotStatusChanged(s snapshot.Status) {
	p.ensureRegistered()
	switch s.State {
	case snapshot.StateIdle:
		p.snapshots.WithLabelValues("success").Inc()
		if s.LastSnapshot != nil {
			p.lastSnap.Set(float64(s.LastSnapshot.Unix()))
		}
	case snapshot.StateError:
		p.snapshots.WithLabelValues("failure").Inc()
	}
}
