package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flychat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flychat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Room log metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flychat_messages_posted_total",
			Help: "Total message posts by outcome",
		},
		[]string{"outcome"}, // "confirmed", "retracted", "rejected"
	)

	AppendAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flychat_append_attempts",
			Help:    "Conditional write attempts per append",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		},
	)

	AppendConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flychat_append_conflicts_total",
			Help: "Conditional writes that lost a race",
		},
	)

	// Fanout metrics
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flychat_publish_total",
			Help: "Publish calls by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: provisional|confirmed|retraction, outcome: delivered|failed
	)

	StreamResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flychat_stream_resets_total",
			Help: "Stream opens whose cursor predates retained history",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flychat_active_streams",
			Help: "Streams currently held by this process",
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flychat_store_latency_seconds",
			Help:    "Room log store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"op"}, // "load", "cas"
	)
)
