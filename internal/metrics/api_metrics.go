package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// API metrics
var (
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "api_requests_total",
		Help:      "Total number of API requests by method, route and status code",
	}, []string{"method", "route", "code"})
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quantopia",
		Name:      "api_request_duration_seconds",
		Help:      "Duration of API requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	StreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quantopia",
		Name:      "stream_clients",
		Help:      "Number of connected task snapshot stream clients",
	})
)

// RecordAPIRequest records a served request. route is the matched route pattern.
func RecordAPIRequest(method, route string, code int, durationSeconds float64) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// StreamOpened tracks a new stream client
func StreamOpened() {
	StreamClients.Inc()
}

// StreamClosed tracks a disconnected stream client
func StreamClosed() {
	StreamClients.Dec()
}
