// Package metrics holds the Prometheus collectors each process registers.
// Every recorder is safe to use when nil or when built without a registerer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tableside"

// CronJobMetrics records how long each scheduled job ran, how it ended and
// when it last succeeded.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	m := &CronJobMetrics{now: time.Now}
	if reg == nil {
		return m
	}
	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "job_duration_seconds",
		Help:      "Wall time of one cron job run.",
		Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300},
	}, []string{"job"})
	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "job_runs_total",
		Help:      "Cron job runs by outcome (success or failure).",
	}, []string{"job", "outcome"})
	m.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the most recent successful run.",
	}, []string{"job"})
	reg.MustRegister(m.duration, m.runs, m.lastSuccess)
	return m
}

func (m *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(label(job)).Observe(duration.Seconds())
}

func (m *CronJobMetrics) IncSuccess(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(label(job), "success").Inc()
	m.lastSuccess.WithLabelValues(label(job)).Set(float64(m.now().Unix()))
}

func (m *CronJobMetrics) IncFailure(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(label(job), "failure").Inc()
}

// label keeps empty values from producing an unnamed series.
func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
