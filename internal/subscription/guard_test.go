// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package subscription

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

type statusFunc func(ctx context.Context) (Status, error)

func (f statusFunc) Status(ctx context.Context) (Status, error) { return f(ctx) }

func fixedStatus(sub models.ManifestSubscription) statusFunc {
	return func(context.Context) (Status, error) { return statusOf(sub), nil }
}

func testGuardConfig() GuardConfig {
	return GuardConfig{
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		PlansPath:      "/plans",
	}
}

func TestGuard_StartsLoading(t *testing.T) {
	t.Parallel()

	g := NewGuard(fixedStatus(models.ManifestSubscription{HasActiveSubscription: true}), testGuardConfig())
	d := g.Snapshot()
	if d.State != GuardLoading || d.CanRender() {
		t.Errorf("initial decision = %+v, want Loading", d)
	}
}

func TestGuard_Denials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sub      models.ManifestSubscription
		reason   string
		headline string
		label    string
	}{
		{
			name:     "grace period",
			sub:      models.ManifestSubscription{IsInGracePeriod: true, SubscriptionStatus: models.StatusExpired},
			reason:   ReasonGracePeriod,
			headline: "Your subscription is in its grace period",
			label:    "Renew subscription",
		},
		{
			name:     "expired",
			sub:      models.ManifestSubscription{SubscriptionStatus: models.StatusExpired},
			reason:   ReasonExpired,
			headline: "Your subscription has expired",
			label:    "Renew subscription",
		},
		{
			name:     "pending",
			sub:      models.ManifestSubscription{SubscriptionStatus: models.StatusPending},
			reason:   ReasonPending,
			headline: "Your payment is being confirmed",
			label:    "View plans",
		},
		{
			name:     "none",
			sub:      models.ManifestSubscription{SubscriptionStatus: models.StatusUnknown},
			reason:   ReasonNoSubscription,
			headline: "Subscription required",
			label:    "View plans",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(fixedStatus(tt.sub), testGuardConfig())
			d := g.Evaluate(context.Background())
			if d.State != GuardDenied || d.CanRender() {
				t.Fatalf("State = %q, want denied", d.State)
			}
			if d.Reason != tt.reason || d.Headline != tt.headline {
				t.Errorf("Reason/Headline = %q/%q, want %q/%q", d.Reason, d.Headline, tt.reason, tt.headline)
			}
			if len(d.Actions) != 1 || d.Actions[0].Kind != ActionPlans || d.Actions[0].Label != tt.label || d.Actions[0].Href != "/plans" {
				t.Errorf("Actions = %+v", d.Actions)
			}
			if d.AutoRedirect != "" {
				t.Errorf("AutoRedirect = %q, want none when not configured", d.AutoRedirect)
			}
			if d.Status == nil {
				t.Error("denial should carry the subscription view")
			}
		})
	}
}

func TestGuard_AutoRedirect(t *testing.T) {
	t.Parallel()

	cfg := testGuardConfig()
	cfg.AutoRedirect = true
	g := NewGuard(fixedStatus(models.ManifestSubscription{SubscriptionStatus: models.StatusExpired}), cfg)
	if d := g.Evaluate(context.Background()); d.AutoRedirect != "/plans" {
		t.Errorf("AutoRedirect = %q, want /plans", d.AutoRedirect)
	}

	failing := NewGuard(statusFunc(func(context.Context) (Status, error) {
		return Status{}, &backend.Error{Kind: backend.KindMalformed}
	}), cfg)
	if d := failing.Evaluate(context.Background()); d.AutoRedirect != "" {
		t.Errorf("verification failure must not auto-redirect, got %q", d.AutoRedirect)
	}
}

func TestGuard_RetriesTransientThenDenies(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	g := NewGuard(statusFunc(func(context.Context) (Status, error) {
		calls.Add(1)
		return Status{}, &backend.Error{Kind: backend.KindServer, StatusCode: 502}
	}), testGuardConfig())

	d := g.Evaluate(context.Background())
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if d.State != GuardDenied || d.Reason != ReasonVerificationFailed || d.ErrorKind != backend.KindServer {
		t.Fatalf("decision = %+v", d)
	}
	if d.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", d.Attempts)
	}
	if len(d.Actions) == 0 || d.Actions[0].Kind != ActionRetry {
		t.Errorf("first action should be retry, got %+v", d.Actions)
	}
}

func TestGuard_RecoversAfterTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	g := NewGuard(statusFunc(func(context.Context) (Status, error) {
		if calls.Add(1) < 3 {
			return Status{}, &backend.Error{Kind: backend.KindTimeout}
		}
		return statusOf(models.ManifestSubscription{HasActiveSubscription: true}), nil
	}), testGuardConfig())

	if d := g.Evaluate(context.Background()); d.State != GuardGranted {
		t.Errorf("State = %q, want granted after recovery", d.State)
	}
}

func TestGuard_DoesNotRetryNonTransient(t *testing.T) {
	t.Parallel()

	for _, kind := range []backend.Kind{backend.KindRateLimited, backend.KindMalformed, backend.KindUnauthorized} {
		var calls atomic.Int32
		g := NewGuard(statusFunc(func(context.Context) (Status, error) {
			calls.Add(1)
			return Status{}, &backend.Error{Kind: kind}
		}), testGuardConfig())

		d := g.Evaluate(context.Background())
		if calls.Load() != 1 {
			t.Errorf("%s: attempts = %d, want 1", kind, calls.Load())
		}
		if d.Reason != ReasonVerificationFailed {
			t.Errorf("%s: reason = %q", kind, d.Reason)
		}
	}
}

func TestGuard_RetryAfterFailure(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	g := NewGuard(statusFunc(func(context.Context) (Status, error) {
		if fail.Load() {
			return Status{}, &backend.Error{Kind: backend.KindMalformed}
		}
		return statusOf(models.ManifestSubscription{HasActiveSubscription: true}), nil
	}), testGuardConfig())

	if d := g.Evaluate(context.Background()); d.State != GuardDenied {
		t.Fatalf("State = %q, want denied", d.State)
	}
	fail.Store(false)
	if d := g.Retry(context.Background()); d.State != GuardGranted {
		t.Errorf("Retry() state = %q, want granted", d.State)
	}
}

func TestGuard_IdentityChangeDiscardsStaleResult(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	g := NewGuard(statusFunc(func(context.Context) (Status, error) {
		close(started)
		<-release
		return statusOf(models.ManifestSubscription{HasActiveSubscription: true}), nil
	}), testGuardConfig())
	g.SetIdentity("user-a")

	result := make(chan Decision, 1)
	go func() { result <- g.Evaluate(context.Background()) }()

	<-started
	g.SetIdentity("user-b")
	close(release)

	d := <-result
	if d.State != GuardLoading {
		t.Errorf("stale evaluation returned %q, want loading", d.State)
	}
	if g.Snapshot().State != GuardLoading {
		t.Errorf("snapshot = %q, want loading", g.Snapshot().State)
	}
}

func TestGuard_SameIdentityKeepsDecision(t *testing.T) {
	t.Parallel()

	g := NewGuard(fixedStatus(models.ManifestSubscription{HasActiveSubscription: true}), testGuardConfig())
	g.SetIdentity("user-a")
	g.Evaluate(context.Background())
	g.SetIdentity("user-a")
	if g.Snapshot().State != GuardGranted {
		t.Errorf("state = %q, want granted", g.Snapshot().State)
	}
}

func TestGuard_ConcurrentEvaluationsBothSettle(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	releases := []chan struct{}{make(chan struct{}), make(chan struct{})}
	started := make(chan int, 2)
	g := NewGuard(statusFunc(func(context.Context) (Status, error) {
		n := int(calls.Add(1)) - 1
		started <- n
		<-releases[n]
		return statusOf(models.ManifestSubscription{HasActiveSubscription: true}), nil
	}), testGuardConfig())
	g.SetIdentity("user-a")

	first := make(chan Decision, 1)
	go func() { first <- g.Evaluate(context.Background()) }()
	<-started
	second := make(chan Decision, 1)
	go func() { second <- g.Evaluate(context.Background()) }()
	<-started

	// The older evaluation finishes first and is superseded.
	close(releases[0])
	select {
	case d := <-first:
		t.Fatalf("superseded evaluation returned %q before the newer one settled", d.State)
	case <-time.After(50 * time.Millisecond):
	}
	close(releases[1])

	for name, ch := range map[string]chan Decision{"first": first, "second": second} {
		select {
		case d := <-ch:
			if d.State != GuardGranted || !d.CanRender() {
				t.Errorf("%s evaluation = %q, want granted", name, d.State)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s evaluation did not return", name)
		}
	}
}

func TestGuard_SupersededEvaluationHonoursContext(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	firstStarted := make(chan struct{})
	gate := make(chan struct{})
	block := make(chan struct{})
	defer close(block)
	g := NewGuard(statusFunc(func(context.Context) (Status, error) {
		if calls.Add(1) == 1 {
			close(firstStarted)
			<-gate
		} else {
			close(gate)
			<-block
		}
		return statusOf(models.ManifestSubscription{SubscriptionStatus: models.StatusExpired}), nil
	}), testGuardConfig())

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan Decision, 1)
	go func() { result <- g.Evaluate(ctx) }()
	<-firstStarted

	// The newer evaluation stays in flight; the older caller gives up.
	go g.Evaluate(context.Background())
	<-gate
	cancel()

	select {
	case d := <-result:
		if d.State != GuardDenied || d.Reason != ReasonExpired {
			t.Errorf("decision = %+v, want its own settled denial", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded evaluation ignored its context")
	}
}
