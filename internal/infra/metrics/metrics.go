// Package metrics exposes engine measurements to Prometheus.
package metrics

import (
	"time"

	"reminder_engine/internal/domain/reminder"
	"reminder_engine/internal/infra/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements app.Observer and scheduler.Recorder.
type Metrics struct {
	ticks          *prometheus.CounterVec
	sweeps         *prometheus.CounterVec
	scheduleErrors *prometheus.CounterVec
	batchSize      prometheus.Histogram
	sweepDuration  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_ticks_total",
			Help: "Cadence ticks by result (dispatched, coalesced, rejected).",
		}, []string{"result"}),
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_sweeps_total",
			Help: "Finished sweeps by outcome.",
		}, []string{"outcome"}),
		scheduleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_schedule_errors_total",
			Help: "Schedules skipped because they could not be evaluated.",
		}, []string{"kind"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_batch_recipients",
			Help:    "Deduplicated recipients per sweep.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_sweep_duration_seconds",
			Help:    "Wall time of a sweep, claim included.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) TickObserved(result scheduler.TickResult) {
	m.ticks.WithLabelValues(string(result)).Inc()
}

func (m *Metrics) SweepObserved(outcome string, took time.Duration) {
	m.sweeps.WithLabelValues(outcome).Inc()
	m.sweepDuration.Observe(took.Seconds())
}

func (m *Metrics) ScheduleError(kind reminder.Kind) {
	m.scheduleErrors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) BatchSize(recipients int) {
	m.batchSize.Observe(float64(recipients))
}
