package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Transfers by outcome code; completed transfers use outcome=\"completed\"",
		},
		[]string{"outcome"},
	)

	TransferRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_transfer_retries_total",
			Help: "Units of work retried after a lock or serialization conflict",
		},
	)

	TransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Time spent executing a transfer, including retries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
	)

	EventPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_event_publish_failures_total",
			Help: "TransactionCompleted events that could not be published",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)
