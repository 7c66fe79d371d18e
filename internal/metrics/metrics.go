// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

// Package metrics holds the gateway's Prometheus collectors. Collectors are
// package-level promauto variables; callers use the RecordX helpers so label
// sets stay consistent.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Manifest cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "manifest", "chat_seen"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_cache_fetches_total",
			Help: "Underlying fetches performed by single-flight loaders",
		},
		[]string{"cache_type", "result"}, // result: "success", "error", "discarded"
	)

	CacheSharedWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_cache_shared_waits_total",
			Help: "Callers that joined an in-flight fetch instead of starting one",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache_type", "reason"}, // reason: "capacity", "expired", "invalidated"
	)

	// Backend client
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ugflix_backend_request_duration_seconds",
			Help:    "Duration of UgFlix backend requests",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"endpoint"},
	)

	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_backend_requests_total",
			Help: "UgFlix backend requests by outcome kind",
		},
		[]string{"endpoint", "outcome"}, // outcome: "ok" or an error kind
	)

	BackendRateLimitSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_backend_rate_limit_suppressed_total",
			Help: "Requests failed fast because the backend asked us to back off",
		},
		[]string{"endpoint"},
	)

	BackendCooldowns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ugflix_backend_cooldowns_total",
			Help: "Number of 429 responses that started a cool-down window",
		},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ugflix_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ugflix_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Retry
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_retry_attempts_total",
			Help: "Retries scheduled by bounded retry policies",
		},
		[]string{"policy"}, // "access_guard", "payment_timeout"
	)

	// Access guard
	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_access_guard_decisions_total",
			Help: "Access guard decisions by state and reason",
		},
		[]string{"state", "reason"},
	)

	// Payment poller
	PaymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_payment_transitions_total",
			Help: "Payment verification state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	PaymentChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_payment_checks_total",
			Help: "Payment verification requests by trigger",
		},
		[]string{"trigger"}, // "initial", "auto", "manual", "timeout_retry"
	)

	PaymentChecksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_payment_checks_skipped_total",
			Help: "Payment verification requests skipped",
		},
		[]string{"reason"}, // "in_flight", "rate_limited", "terminal"
	)

	PaymentWatchesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ugflix_payment_watches_active",
			Help: "Number of open payment watches",
		},
	)

	// Pending pre-check
	PreCheckOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_pending_precheck_total",
			Help: "Pending-subscription pre-check outcomes",
		},
		[]string{"stage", "outcome"}, // stage: "plans", "purchase"; outcome: "clear", "pending", "degraded", "error"
	)

	// Chat polling
	ChatPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_chat_polls_total",
			Help: "Chat message polls by result",
		},
		[]string{"result"},
	)

	ChatMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_chat_messages_sent_total",
			Help: "Chat messages sent through the gateway by result",
		},
		[]string{"result"},
	)

	// Sessions
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ugflix_sessions_active",
			Help: "Number of live per-user engines",
		},
	)

	SessionEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_session_evictions_total",
			Help: "Per-user engines closed by reason",
		},
		[]string{"reason"}, // "idle", "token_expired", "capacity", "shutdown"
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_events_published_total",
			Help: "Payment outcome events published",
		},
		[]string{"subject", "result"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ugflix_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ugflix_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_api_rate_limit_hits_total",
			Help: "Total number of inbound rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ugflix_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ugflix_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugflix_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ugflix_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordBackendRequest records one backend call. outcome is "ok" or the
// error kind.
func RecordBackendRequest(endpoint, outcome string, duration time.Duration) {
	BackendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	BackendRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordCacheLookup records a hit or miss for cacheType.
func RecordCacheLookup(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordCacheFetch records the result of an underlying single-flight fetch.
func RecordCacheFetch(cacheType, result string) {
	CacheFetches.WithLabelValues(cacheType, result).Inc()
}

// RecordGuardDecision records a settled access guard decision.
func RecordGuardDecision(state, reason string) {
	GuardDecisions.WithLabelValues(state, reason).Inc()
}

// RecordPaymentTransition records a payment state change.
func RecordPaymentTransition(from, to string) {
	PaymentTransitions.WithLabelValues(from, to).Inc()
}

// RecordPreCheck records a pending pre-check outcome.
func RecordPreCheck(stage, outcome string) {
	PreCheckOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}
