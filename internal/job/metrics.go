package job

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dunamismax/thumbnailer/internal/pipeline"
)

// Metrics counts jobs and step outcomes. A nil *Metrics records nothing.
type Metrics struct {
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	pixelsRendered prometheus.Counter
	bytesRendered  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_jobs_total",
			Help: "Total thumbnail jobs by engine and final status.",
		}, []string{"engine", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thumbnailer_job_duration_seconds",
			Help:    "Wall time of each thumbnail job from input to persisted output.",
			Buckets: prometheus.DefBuckets,
		}, []string{"engine", "status"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_steps_total",
			Help: "Transform steps by action and outcome (applied, skipped, failed).",
		}, []string{"action", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thumbnailer_step_duration_seconds",
			Help:    "Duration of applied transform steps.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"action"}),
		pixelsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_pixels_rendered_total",
			Help: "Total pixels in persisted thumbnails.",
		}),
		bytesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_bytes_rendered_total",
			Help: "Total encoded bytes of persisted thumbnails.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.jobsTotal,
			m.jobDuration,
			m.stepsTotal,
			m.stepDuration,
			m.pixelsRendered,
			m.bytesRendered,
		)
	}
	return m
}

func (m *Metrics) observeJob(engine, status string, elapsed time.Duration, res pipeline.Result) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(engine, status).Inc()
	m.jobDuration.WithLabelValues(engine, status).Observe(elapsed.Seconds())
	if res.Bytes > 0 {
		m.pixelsRendered.Add(float64(res.Width * res.Height))
		m.bytesRendered.Add(float64(res.Bytes))
	}
}

func (m *Metrics) observeStep(action string, outcome pipeline.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(action, string(outcome)).Inc()
	if outcome == pipeline.OutcomeApplied {
		m.stepDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	}
}
