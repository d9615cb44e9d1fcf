package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobqueue_jobs_processed_total",
			Help: "Jobs handled by the worker, by outcome",
		},
		[]string{"kind", "outcome"}, // outcome: succeeded, retried, dead
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobqueue_job_duration_seconds",
			Help:    "Job handler duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"kind"},
	)

	JobQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobqueue_depth",
			Help: "Jobs per queue state",
		},
		[]string{"kind", "state"}, // state: waiting, delayed, active, dead
	)

	OutboxRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_relayed_total",
			Help: "Outbox events handed to a sink",
		},
		[]string{"event_type", "sink"},
	)

	OutboxRelayErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_relay_errors_total",
			Help: "Outbox relay batches that failed",
		},
	)

	AppointmentsBooked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appointments_booked_total",
			Help: "Appointments successfully booked",
		},
	)

	AppointmentsCanceled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appointments_canceled_total",
			Help: "Appointments successfully canceled",
		},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Emails handed to the mail transport, by status",
		},
		[]string{"template", "status"}, // status: success, failed, skipped
	)
)

func RecordHTTPRequestDuration(method, route string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func RecordJob(kind, outcome string, d time.Duration) {
	JobsProcessed.WithLabelValues(kind, outcome).Inc()
	JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func SetQueueDepth(kind string, waiting, delayed, active, dead int64) {
	JobQueueDepth.WithLabelValues(kind, "waiting").Set(float64(waiting))
	JobQueueDepth.WithLabelValues(kind, "delayed").Set(float64(delayed))
	JobQueueDepth.WithLabelValues(kind, "active").Set(float64(active))
	JobQueueDepth.WithLabelValues(kind, "dead").Set(float64(dead))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

// WithHTTPMetrics records request duration labelled by the matched mux
// pattern, so path parameters do not explode label cardinality.
func WithHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		RecordHTTPRequestDuration(r.Method, route, status, time.Since(start))
	})
}
