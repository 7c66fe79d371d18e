// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package backend is the HTTP client for the UgFlix REST backend.

Client Features:
  - One shared Client per process; ForUser binds a bearer token
  - Outgoing pacing with a token bucket (golang.org/x/time/rate)
  - Circuit breaker (sony/gobreaker/v2) that only counts transient failures
  - HTTP 429 cool-down: Retry-After (or a configured default) during which
    calls for that user fail fast with KindRateLimited without touching the
    network
  - Envelope decoding ({code, message, data}) with goccy/go-json and
    response-shape validation; bad shapes become KindMalformed

The client never retries. Retry policy belongs to callers (internal/retry).

Related Files:
  - errors.go: Error and the Kind taxonomy
  - request.go: request execution, status classification, decoding
  - endpoints.go: typed endpoint methods
*/
package backend

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/ugflix-gateway/internal/config"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
)

const breakerName = "ugflix-backend"

// Client is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	clock   clockwork.Clock

	defaultCooldown time.Duration
	maxCooldown     time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces the clock used for rate-limit cool-downs.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// New creates a Client from configuration.
func New(cfg *config.BackendConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}

	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL:         base,
		http:            &http.Client{Timeout: cfg.Timeout},
		limiter:         rate.NewLimiter(limit, burst),
		clock:           clockwork.NewRealClock(),
		defaultCooldown: cfg.RateLimitCooldown,
		maxCooldown:     cfg.MaxCooldown,
	}
	c.breaker = newBreaker(&cfg.Breaker)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForUser returns a client bound to one bearer token. Each UserClient keeps
// its own 429 cool-down so one throttled user does not block the others.
func (c *Client) ForUser(token string) *UserClient {
	return &UserClient{client: c, token: token}
}

// BreakerState returns closed, half-open or open.
func (c *Client) BreakerState() string {
	return stateToString(c.breaker.State())
}

func newBreaker(cfg *config.BreakerConfig) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(0)

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
		// 404s, 401s, 429s and bad payloads are answers, not outages.
		IsSuccessful: func(err error) bool {
			return !IsTransient(err)
		},
	})
}

// execute runs fn through the breaker and keeps breaker metrics current.
func (c *Client) execute(fn func() ([]byte, error)) ([]byte, error) {
	body, err := c.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
			return nil, &Error{Kind: KindCircuitOpen, Err: err}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		counts := c.breaker.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(float64(counts.ConsecutiveFailures))
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(0)
	return body, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
