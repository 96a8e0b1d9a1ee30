package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// RepliesTotal counts inbound replies by interpreted outcome.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_replies_total",
			Help: "Inbound replies by outcome",
		},
		[]string{"outcome"},
	)

	PromptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_prompts_total",
			Help: "Outbound confirmation prompts by result",
		},
		[]string{"result"},
	)

	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_import_rows_total",
			Help: "Bulk import rows by result",
		},
		[]string{"result"},
	)
)
