package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	activeJobs      prometheus.Gauge
	imagesGenerated prometheus.Counter
	creditsRefunded prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "designbuddy_worker_jobs_total",
			Help: "Design generation jobs handled, by final status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "designbuddy_worker_job_duration_seconds",
			Help:    "End-to-end design generation duration, by final status.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "designbuddy_worker_active_jobs",
			Help: "Design generations currently in flight.",
		}),
		imagesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "designbuddy_worker_images_generated_total",
			Help: "Design images generated and stored.",
		}),
		creditsRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "designbuddy_worker_credits_refunded_total",
			Help: "Credits refunded after provider-attributable failures.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.imagesGenerated,
		m.creditsRefunded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
