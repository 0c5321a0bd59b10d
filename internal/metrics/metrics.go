package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the verification pipeline and order lifecycle
var (
	VerificationOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_outcomes_total",
			Help: "Total number of verification decisions by tier",
		},
		[]string{"tier"},
	)

	VerificationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verification_confidence",
			Help:    "Confidence score of receipt verifications",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	VerificationPipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verification_pipeline_duration_seconds",
			Help:    "Duration of the extract, score and apply pipeline",
			Buckets: prometheus.DefBuckets,
		},
	)

	FulfillmentFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_failures_total",
			Help: "Total number of ticket fulfillment failures by stage",
		},
		[]string{"stage"},
	)

	AutoApprovalRaceLossesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auto_approval_race_losses_total",
			Help: "Total number of status updates that lost to a concurrent writer",
		},
	)

	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total number of applied payment status transitions",
		},
		[]string{"from", "to"},
	)

	// Standard HTTP metrics, recorded by Instrument
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(VerificationOutcomesTotal)
	prometheus.MustRegister(VerificationConfidence)
	prometheus.MustRegister(VerificationPipelineDuration)
	prometheus.MustRegister(FulfillmentFailuresTotal)
	prometheus.MustRegister(AutoApprovalRaceLossesTotal)
	prometheus.MustRegister(OrderTransitionsTotal)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
}

// Instrument records request count and latency labelled by the matched chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(startTime).Seconds())
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
