// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind classifies a failed backend call.
type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindNetwork      Kind = "network"
	KindRateLimited  Kind = "rate_limited"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindServer       Kind = "server"
	KindClient       Kind = "client"
	KindMalformed    Kind = "malformed"
	KindCircuitOpen  Kind = "circuit_open"
	KindCanceled     Kind = "canceled"
)

// Error is returned by every Client method that fails.
type Error struct {
	Kind       Kind
	Endpoint   string
	StatusCode int
	// Message is the backend's own message when it sent one.
	Message string
	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("backend %s: %s", e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// RetryDelay lets retry policies wait out a rate-limit window.
func (e *Error) RetryDelay() time.Duration { return e.RetryAfter }

// KindOf returns the Kind of err, or "" when err is not a backend error.
// Context errors that never reached the client are classified too.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return ""
}

// IsTransient reports whether retrying err later may succeed: timeouts,
// network failures, 5xx responses and an open circuit. Rate limiting is
// deliberately excluded so callers back off instead of retrying in place.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindNetwork, KindServer, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsNotFound reports whether the backend answered 404.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsRateLimited reports whether the call was refused because of a 429.
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// IsMalformed reports whether the response did not have the expected shape.
func IsMalformed(err error) bool { return KindOf(err) == KindMalformed }

// IsUnauthorized reports whether the token was rejected.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsServerError reports whether the backend answered 5xx.
func IsServerError(err error) bool { return KindOf(err) == KindServer }

// classifyTransportError maps an http.Client error onto a Kind.
func classifyTransportError(ctx context.Context, err error) Kind {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return KindTimeout
		}
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// kindForStatus maps a non-2xx HTTP status onto a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == 404:
		return KindNotFound
	case status == 401 || status == 403:
		return KindUnauthorized
	case status == 429:
		return KindRateLimited
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}
