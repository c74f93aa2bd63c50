package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "enrollments_total",
		Help:      "Enrollment sessions by outcome",
	}, []string{"outcome"})

	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "recognitions_total",
		Help:      "Verification sessions by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "stage_duration_seconds",
		Help:      "Duration of capture, extract and match stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	DeviceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "device_errors_total",
		Help:      "Capture device faults by operation",
	}, []string{"op"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "identity_events_published_total",
		Help:      "Identity events published to NATS",
	}, []string{"type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
