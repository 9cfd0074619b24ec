// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "biogas"

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)
)

// Ingest metrics.
var (
	// MessagesReceived counts payloads by source ("mqtt", "http").
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      "Sensor payloads received",
		},
		[]string{"source"},
	)

	// MessagesDropped counts payloads not persisted, by reason.
	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_dropped_total",
			Help:      "Sensor payloads dropped",
		},
		[]string{"reason"},
	)

	ReadingsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_stored_total",
			Help:      "Sensor readings persisted",
		},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by sensor field",
		},
		[]string{"field"},
	)

	WebhookFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_webhook_failures_total",
			Help:      "Alert webhook deliveries that failed",
		},
	)
)

// Drop reasons.
const (
	DropDecode      = "decode"
	DropNoStage     = "no_active_stage"
	DropStageClosed = "stage_closed"
	DropStore       = "store"
)
