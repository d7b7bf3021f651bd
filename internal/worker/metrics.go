package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	activeJobs      prometheus.Gauge
	webhookFailures *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_worker_tasks_total",
			Help: "Total render tasks by source type and final status.",
		}, []string{"source_type", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thumbnailer_worker_task_duration_seconds",
			Help:    "Total handling duration for each render task, including the wait for a slot.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thumbnailer_worker_active_jobs",
			Help: "Current number of renders holding a worker slot.",
		}),
		webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_worker_webhook_failures_total",
			Help: "Webhook notifications that could not be delivered, by event.",
		}, []string{"event"}),
	}

	registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.activeJobs,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
