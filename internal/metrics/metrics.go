package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_jobs_created_total",
			Help: "Jobs accepted by the API",
		},
		[]string{"job_type"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_jobs_processed_total",
			Help: "Queue messages handled by workers, by outcome",
		},
		[]string{"job_type", "outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "export_job_duration_seconds",
			Help:    "Time spent executing a job",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"job_type"},
	)

	FeaturesExported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_features_written_total",
			Help: "Features written into export artifacts",
		},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "export_jobs_in_flight",
			Help: "Jobs currently being executed by this worker",
		},
	)

	LeasesRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_queue_leases_requeued_total",
			Help: "Messages returned to the queue after their lease expired",
		},
	)

	JobsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_jobs_purged_total",
			Help: "Expired job records deleted",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
