// Package metrics exposes Prometheus collectors for the job workflow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry
	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
	polls    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webui_jobs_total",
			Help: "Image jobs by workflow and outcome kind.",
		}, []string{"workflow", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webui_job_duration_seconds",
			Help:    "Wall time from submission to outcome.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 720},
		}, []string{"workflow"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webui_transport_retries_total",
			Help: "Retried remote calls by reason.",
		}, []string{"reason"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webui_job_polls_total",
			Help: "Status polls by observed task status.",
		}, []string{"status"}),
	}
	r.registry.MustRegister(
		r.jobs, r.duration, r.retries, r.polls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// JobFinished records one workflow outcome. outcome is "ok" or a failure kind.
func (r *Recorder) JobFinished(workflow, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.jobs.WithLabelValues(workflow, outcome).Inc()
	r.duration.WithLabelValues(workflow).Observe(elapsed.Seconds())
}

// Retry records a retried remote call.
func (r *Recorder) Retry(reason string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(reason).Inc()
}

// Poll records a status poll. status is the reported task status or
// "unavailable" when no usable answer came back.
func (r *Recorder) Poll(status string) {
	if r == nil {
		return
	}
	r.polls.WithLabelValues(status).Inc()
}
