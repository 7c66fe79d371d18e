// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package retry provides the single bounded-retry helper used by the access
guard, the payment poller and any other caller that needs to retry a backend
call.

A Policy names the attempt cap, the base delay, how the delay grows and which
errors are worth retrying. Everything else is delegated to
github.com/cenkalti/backoff/v5:

	policy := retry.Policy{
		Name:        "access_guard",
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Strategy:    retry.Linear, // 1s, 2s
		Retryable:   backend.IsTransient,
	}
	status, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (Status, error) {
		return resolver.Status(ctx)
	})

Errors that are not retryable stop the loop immediately and are returned
unchanged. When attempts run out, the last error is returned unchanged, so
callers can keep classifying it with errors.As.
*/
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
)

// Strategy controls how the delay grows between attempts.
type Strategy int

const (
	// Fixed waits BaseDelay before every retry.
	Fixed Strategy = iota
	// Linear waits BaseDelay * n before the n-th retry.
	Linear
	// Exponential doubles the delay on every retry, starting at BaseDelay.
	Exponential
)

// String returns the strategy name for logs.
func (s Strategy) String() string {
	switch s {
	case Fixed:
		return "fixed"
	case Linear:
		return "linear"
	case Exponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// Policy describes one bounded retry loop.
type Policy struct {
	// Name labels metrics and log lines.
	Name string

	// MaxAttempts counts the first call. Values below 1 mean a single attempt.
	MaxAttempts int

	BaseDelay time.Duration

	// MaxDelay caps every computed delay and every hint. Zero means no cap.
	MaxDelay time.Duration

	Strategy Strategy

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(error) bool

	// OnRetry is called before sleeping. attempt is the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DelayHinter is implemented by errors that carry a server-provided minimum
// delay, such as a 429 Retry-After.
type DelayHinter interface {
	RetryDelay() time.Duration
}

// Operation is one attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// cap is reached, or ctx is done.
func Do[T any](ctx context.Context, p Policy, op Operation[T]) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := &policyBackOff{policy: p}
	attempt := 0

	wrapped := func() (T, error) {
		attempt++
		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return result, backoff.Permanent(err)
		}
		b.hint = 0
		var hinter DelayHinter
		if errors.As(err, &hinter) {
			b.hint = hinter.RetryDelay()
		}
		return result, err
	}

	notify := func(err error, delay time.Duration) {
		metrics.RetryAttempts.WithLabelValues(p.label()).Inc()
		logging.Ctx(ctx).Debug().
			Str("policy", p.label()).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying after failure")
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}

// Delay returns the wait before retry number n (1-based) without any hint.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	var d time.Duration
	switch p.Strategy {
	case Linear:
		d = p.BaseDelay * time.Duration(n)
	case Exponential:
		d = p.BaseDelay
		for i := 1; i < n; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				break
			}
		}
	default:
		d = p.BaseDelay
	}
	return p.capDelay(d)
}

func (p Policy) capDelay(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) label() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}

// policyBackOff adapts a Policy to backoff.BackOff. The hint is set by the
// operation wrapper from the most recent error.
type policyBackOff struct {
	policy Policy
	n      int
	hint   time.Duration
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.n++
	d := b.policy.Delay(b.n)
	if hint := b.policy.capDelay(b.hint); hint > d {
		d = hint
	}
	return d
}

func (b *policyBackOff) Reset() {
	b.n = 0
	b.hint = 0
}
