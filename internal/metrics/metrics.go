// Package metrics exposes Prometheus instrumentation for the webhook
// pipeline: emission, fan-out, delivery outcomes, and attempt latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_emitted_total",
			Help: "Total number of events persisted by the emitter",
		},
		[]string{"event_type"},
	)

	DeliveriesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_created_total",
			Help: "Total number of deliveries scheduled at fan-out",
		},
	)

	DeliveriesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_completed_total",
			Help: "Total number of deliveries reaching a terminal state",
		},
		[]string{"status"}, // delivered, abandoned, failed
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_delivery_attempts_total",
			Help: "Total number of HTTP delivery attempts by outcome",
		},
		[]string{"outcome"}, // success, timeout, connection_error, ssl_error, dns_error, http_error
	)

	AttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_attempt_duration_seconds",
			Help:    "Duration of webhook HTTP attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimitDeferrals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_rate_limit_deferrals_total",
			Help: "Total number of attempts deferred by per-endpoint rate limits",
		},
	)
)
