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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stampwire_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stampwire_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	deliveriesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stampwire_deliveries_received_total",
			Help: "Inbound webhook deliveries by endpoint and verification outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	verifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stampwire_verify_duration_seconds",
			Help:    "Signature verification time in seconds",
			Buckets: []float64{.00001, .0001, .001, .01, .1},
		},
	)

	duplicateDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stampwire_duplicate_deliveries_total",
			Help: "Deliveries acknowledged without reprocessing because their ID was already seen",
		},
		[]string{"endpoint"},
	)

	dispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stampwire_dispatch_attempts_total",
			Help: "Outbound delivery attempts by result",
		},
		[]string{"result"},
	)

	dispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stampwire_dispatch_queue_depth",
			Help: "Deliveries currently pending or retrying in the dispatch queue",
		},
	)

	dispatchDLQSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stampwire_dispatch_dlq_size",
			Help: "Deliveries parked in the dead-letter queue",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordDelivery(endpoint, outcome string, verifyTime time.Duration) {
	deliveriesReceived.WithLabelValues(endpoint, outcome).Inc()
	verifyDuration.Observe(verifyTime.Seconds())
}

func RecordDuplicate(endpoint string) {
	duplicateDeliveries.WithLabelValues(endpoint).Inc()
}

func RecordDispatchAttempt(result string) {
	dispatchAttempts.WithLabelValues(result).Inc()
}

func UpdateDispatchDepth(queued, dlq int) {
	dispatchQueueDepth.Set(float64(queued))
	dispatchDLQSize.Set(float64(dlq))
}
