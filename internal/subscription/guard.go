// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
	"github.com/tomtom215/ugflix-gateway/internal/retry"
)

// GuardState is the render state of a protected view.
type GuardState string

const (
	GuardLoading GuardState = "loading"
	GuardGranted GuardState = "granted"
	GuardDenied  GuardState = "denied"
)

// Denial and grant reasons.
const (
	ReasonActive             = "active"
	ReasonGracePeriod        = "grace_period"
	ReasonExpired            = "expired"
	ReasonPending            = "pending"
	ReasonNoSubscription     = "no_subscription"
	ReasonVerificationFailed = "verification_failed"
)

// Action kinds offered to the user.
const (
	ActionPlans = "plans"
	ActionRetry = "retry"
)

// Action is a recovery or upsell button.
type Action struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Href  string `json:"href,omitempty"`
}

// Decision is a snapshot of a guard.
type Decision struct {
	State    GuardState  `json:"state"`
	Reason   string      `json:"reason,omitempty"`
	Headline string      `json:"headline,omitempty"`
	Message  string      `json:"message,omitempty"`
	Status   *StatusView `json:"subscription,omitempty"`
	Actions  []Action    `json:"actions,omitempty"`
	// AutoRedirect is the plans path when the guard is configured to
	// redirect on denial; empty otherwise.
	AutoRedirect string `json:"auto_redirect,omitempty"`
	// ErrorKind is set when verification failed.
	ErrorKind backend.Kind `json:"error_kind,omitempty"`
	Attempts  int          `json:"attempts,omitempty"`
}

// CanRender reports whether protected content may be shown.
func (d Decision) CanRender() bool { return d.State == GuardGranted }

// StatusSource is what the guard evaluates.
type StatusSource interface {
	Status(ctx context.Context) (Status, error)
}

// GuardConfig configures a Guard.
type GuardConfig struct {
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	AutoRedirect     bool
	PlansPath        string
	ExpiringSoonDays int
}

// Guard decides whether a protected view renders. A Guard never returns an
// error: every failure becomes a Denied decision with a retry action.
//
// Evaluate may be called concurrently. Only the newest evaluation settles the
// guard; an older caller for the same identity waits for that settlement and
// returns it, so no caller gets Loading back as a final answer.
type Guard struct {
	src StatusSource
	cfg GuardConfig

	mu         sync.Mutex
	identity   string
	generation uint64
	decision   Decision
	// settled is closed when the guard leaves Loading.
	settled chan struct{}
}

// NewGuard returns a guard in the Loading state.
func NewGuard(src StatusSource, cfg GuardConfig) *Guard {
	if cfg.ExpiringSoonDays <= 0 {
		cfg.ExpiringSoonDays = DefaultExpiringSoonDays
	}
	return &Guard{
		src:      src,
		cfg:      cfg,
		decision: Decision{State: GuardLoading},
		settled:  make(chan struct{}),
	}
}

// enterLoadingLocked starts a new Loading period. Waiters on the previous
// period are woken when wake is set.
func (g *Guard) enterLoadingLocked(wake bool) {
	g.generation++
	g.decision = Decision{State: GuardLoading}
	if wake {
		g.settleLocked()
	}
	select {
	case <-g.settled:
		g.settled = make(chan struct{})
	default:
	}
}

func (g *Guard) settleLocked() {
	select {
	case <-g.settled:
	default:
		close(g.settled)
	}
}

// SetIdentity resets the guard to Loading when the user changes. In-flight
// evaluations for the previous identity are discarded.
func (g *Guard) SetIdentity(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if identity == g.identity {
		return
	}
	g.identity = identity
	g.enterLoadingLocked(true)
}

// Snapshot returns the current decision without evaluating.
func (g *Guard) Snapshot() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Evaluate enters Loading, resolves access and returns the settled
// decision. Transient failures are retried with linear backoff.
func (g *Guard) Evaluate(ctx context.Context) Decision {
	g.mu.Lock()
	g.enterLoadingLocked(false)
	gen := g.generation
	identity := g.identity
	g.mu.Unlock()

	decision := g.resolve(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.generation == gen {
		g.decision = decision
		g.settleLocked()
		metrics.RecordGuardDecision(string(decision.State), decision.Reason)
		return decision
	}

	logging.Ctx(ctx).Debug().Msg("Discarding stale access evaluation")
	for g.identity == identity && g.decision.State == GuardLoading {
		settled := g.settled
		g.mu.Unlock()
		select {
		case <-settled:
			g.mu.Lock()
		case <-ctx.Done():
			// Our own result is settled, just older than the one in flight.
			g.mu.Lock()
			return decision
		}
	}
	return g.decision
}

// Retry re-evaluates after a failure. It is the handler for the retry action.
func (g *Guard) Retry(ctx context.Context) Decision {
	return g.Evaluate(ctx)
}

func (g *Guard) resolve(ctx context.Context) Decision {
	attempts := 0
	policy := retry.Policy{
		Name:        "access_guard",
		MaxAttempts: g.cfg.RetryAttempts,
		BaseDelay:   g.cfg.RetryBaseDelay,
		Strategy:    retry.Linear,
		Retryable:   backend.IsTransient,
	}
	st, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (Status, error) {
		attempts = attempt
		return g.src.Status(ctx)
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int("attempts", attempts).Msg("Access verification failed")
		return g.verificationFailed(err, attempts)
	}

	view := st.View(g.cfg.ExpiringSoonDays)
	level := st.AccessLevel()
	if level == AccessActive {
		return Decision{State: GuardGranted, Reason: ReasonActive, Status: &view, Attempts: attempts}
	}

	d := Decision{State: GuardDenied, Status: &view, Attempts: attempts}
	switch level {
	case AccessGracePeriod:
		d.Reason = ReasonGracePeriod
		d.Headline = "Your subscription is in its grace period"
		d.Message = "Renew now to keep watching without interruption."
	case AccessExpired:
		d.Reason = ReasonExpired
		d.Headline = "Your subscription has expired"
		d.Message = "Choose a plan to continue watching."
	case AccessPending:
		d.Reason = ReasonPending
		d.Headline = "Your payment is being confirmed"
		d.Message = "Access unlocks as soon as the payment is confirmed."
	default:
		d.Reason = ReasonNoSubscription
		d.Headline = "Subscription required"
		d.Message = "Subscribe to watch this content."
	}
	d.Actions = []Action{g.plansAction(level)}
	if g.cfg.AutoRedirect {
		d.AutoRedirect = g.cfg.PlansPath
	}
	return d
}

func (g *Guard) plansAction(level AccessLevel) Action {
	label := "View plans"
	if level == AccessGracePeriod || level == AccessExpired {
		label = "Renew subscription"
	}
	return Action{Kind: ActionPlans, Label: label, Href: g.cfg.PlansPath}
}

// verificationFailed never auto-redirects: the user may well be subscribed.
func (g *Guard) verificationFailed(err error, attempts int) Decision {
	kind := backend.KindOf(err)
	msg := "We could not verify your subscription. Please try again."
	if kind == backend.KindRateLimited {
		msg = "Too many requests right now. Please wait a moment and try again."
	}
	return Decision{
		State:     GuardDenied,
		Reason:    ReasonVerificationFailed,
		Headline:  "Verification failed",
		Message:   msg,
		ErrorKind: kind,
		Attempts:  attempts,
		Actions: []Action{
			{Kind: ActionRetry, Label: "Try again"},
			{Kind: ActionPlans, Label: "View plans", Href: g.cfg.PlansPath},
		},
	}
}
