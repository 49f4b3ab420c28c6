package metrics

import (
	"net/http"

	"github.com/go-signup-api/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_jobs_processed_total",
		Help: "Notification jobs by channel and terminal outcome.",
	}, []string{"channel", "outcome"})

	jobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_job_retries_total",
		Help: "Notification delivery attempts that were rescheduled.",
	})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notification_queue_depth",
		Help: "Current queue depth by job state.",
	}, []string{"state"})
)

// JobCompleted records a successful delivery.
func JobCompleted(channel domain.NotificationChannel) {
	jobsProcessed.WithLabelValues(string(channel), "completed").Inc()
}

// JobFailed records a delivery that exhausted its retries.
func JobFailed(channel domain.NotificationChannel) {
	jobsProcessed.WithLabelValues(string(channel), "failed").Inc()
}

// JobRetried records a rescheduled attempt.
func JobRetried() {
	jobRetries.Inc()
}

// ObserveQueue publishes the current queue depth counts.
func ObserveQueue(m domain.QueueMetrics) {
	queueDepth.WithLabelValues("waiting").Set(float64(m.Waiting))
	queueDepth.WithLabelValues("active").Set(float64(m.Active))
	queueDepth.WithLabelValues("completed").Set(float64(m.Completed))
	queueDepth.WithLabelValues("failed").Set(float64(m.Failed))
	queueDepth.WithLabelValues("delayed").Set(float64(m.Delayed))
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
