// Package metrics exposes ingestion counters and gauges for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fantasy_ingest/internal/domain"
)

const namespace = "fantasy_ingest"

type Metrics struct {
	SourceRunsTotal       *prometheus.CounterVec
	SourceDurationSeconds *prometheus.HistogramVec
	ItemsTotal            *prometheus.CounterVec

	ContentRunsTotal       *prometheus.CounterVec
	ContentDurationSeconds *prometheus.HistogramVec

	SchedulerRunsTotal *prometheus.CounterVec
	LastSuccessTime    prometheus.Gauge
	LastRunTime        prometheus.Gauge
}

// New registers all metrics with reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SourceRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "runs_total",
				Help:      "Per-source ingestion attempts by result",
			},
			[]string{"content_type", "result"},
		),
		SourceDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "duration_seconds",
				Help:      "Time spent ingesting a single source",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"content_type"},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Items handled by the upserter by status",
			},
			[]string{"content_type", "status"},
		),
		ContentRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "orchestrator",
				Name:      "runs_total",
				Help:      "Orchestrator runs per content type by result",
			},
			[]string{"content_type", "result"},
		),
		ContentDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "orchestrator",
				Name:      "duration_seconds",
				Help:      "Duration of an orchestrator run per content type",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"content_type"},
		),
		SchedulerRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "runs_total",
				Help:      "Scheduler runs by trigger and status",
			},
			[]string{"trigger", "status"},
		),
		LastSuccessTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful scheduler run",
		}),
		LastRunTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last scheduler run of any status",
		}),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) ObserveSource(ct domain.ContentType, outcome domain.SourceOutcome) {
	label := string(ct)
	m.SourceRunsTotal.WithLabelValues(label, result(outcome.Success)).Inc()
	m.SourceDurationSeconds.WithLabelValues(label).Observe(outcome.Duration.Seconds())
	m.ItemsTotal.WithLabelValues(label, string(domain.UpsertNew)).Add(float64(outcome.Created))
	m.ItemsTotal.WithLabelValues(label, string(domain.UpsertUpdated)).Add(float64(outcome.Updated))
	m.ItemsTotal.WithLabelValues(label, string(domain.UpsertSkipped)).Add(float64(outcome.Skipped))
}

func (m *Metrics) ObserveRun(outcome *domain.RunOutcome) {
	label := string(outcome.ContentType)
	m.ContentRunsTotal.WithLabelValues(label, result(outcome.Success)).Inc()
	m.ContentDurationSeconds.WithLabelValues(label).Observe(outcome.Duration.Seconds())
}

func (m *Metrics) ObserveSchedulerRun(record *domain.RunRecord) {
	m.SchedulerRunsTotal.WithLabelValues(string(record.Trigger), string(record.Status)).Inc()
	m.LastRunTime.Set(float64(record.FinishedAt.Unix()))
	if record.Status == domain.RunStatusSuccess {
		m.LastSuccessTime.Set(float64(record.FinishedAt.Unix()))
	}
}
