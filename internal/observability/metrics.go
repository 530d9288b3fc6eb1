// Package observability exposes job metrics and the worker's health over HTTP.
package observability

import (
	"time"

	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the worker's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	jobs             *prometheus.CounterVec
	failures         *prometheus.CounterVec
	jobDuration      prometheus.Histogram
	stageDuration    *prometheus.HistogramVec
	retentionRemoved prometheus.Counter
}

// NewMetrics registers the worker's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_worker_jobs_total",
			Help: "Total number of jobs handled",
		}, []string{"status"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_worker_job_failures_total",
			Help: "Total number of failed jobs by failing stage",
		}, []string{"stage"}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_worker_job_duration_seconds",
			Help:    "End-to-end job duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_worker_stage_duration_seconds",
			Help:    "Duration of each job stage in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		retentionRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_worker_retention_removed_files_total",
			Help: "Total number of files removed by the retention sweeper",
		}),
	}
}

// ObserveStage records how long one stage of a job took.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveJob records a finished job. err is the failure the job ended with, or nil.
func (m *Metrics) ObserveJob(err error, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.jobDuration.Observe(elapsed.Seconds())

	if err == nil {
		m.jobs.WithLabelValues(StatusSuccess).Inc()

		return
	}

	m.jobs.WithLabelValues(StatusError).Inc()
	m.failures.WithLabelValues(core.Stage(err)).Inc()
}

// ObserveFailure counts a failure that surfaced after the job itself was observed, such as
// a reply the transport refused.
func (m *Metrics) ObserveFailure(err error) {
	if m == nil || err == nil {
		return
	}

	m.failures.WithLabelValues(core.Stage(err)).Inc()
}

// AddRetentionRemoved counts files deleted by the retention sweeper.
func (m *Metrics) AddRetentionRemoved(count int) {
	if m == nil || count <= 0 {
		return
	}

	m.retentionRemoved.Add(float64(count))
}
