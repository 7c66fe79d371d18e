// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/config"
	"github.com/tomtom215/ugflix-gateway/internal/events"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/marker"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
	"github.com/tomtom215/ugflix-gateway/internal/models"
	"github.com/tomtom215/ugflix-gateway/internal/poll"
	"github.com/tomtom215/ugflix-gateway/internal/retry"
)

var (
	// ErrCheckInFlight is returned by CheckNow while another check runs.
	ErrCheckInFlight = errors.New("payment check already in flight")

	// ErrTerminal is returned when checking a watch that settled in
	// Success or Failed.
	ErrTerminal = errors.New("payment watch has settled")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("payment watch is closed")

	// ErrNoTrackingID is returned by Start without a tracking id.
	ErrNoTrackingID = errors.New("order tracking id is required")

	// ErrRetryNotAllowed is returned by RetryPayment unless the payment failed.
	ErrRetryNotAllowed = errors.New("payment retry is only offered after a failed payment")
)

// Check triggers, used as metric labels.
const (
	triggerInitial      = "initial"
	triggerAuto         = "auto"
	triggerManual       = "manual"
	triggerTimeoutRetry = "timeout_retry"
)

// Action kinds offered by a settled watch.
const (
	ActionCheckNow     = "check_now"
	ActionRetryPayment = "retry_payment"
	ActionPlans        = "plans"
	ActionContinue     = "continue"
)

const publishTimeout = 5 * time.Second

// API is the backend surface a watch needs.
type API interface {
	GetPaymentStatus(ctx context.Context, trackingID string) (*models.PaymentStatusData, error)
	CheckPaymentStatus(ctx context.Context, trackingID string) (*models.PaymentStatusData, error)
	RetryPayment(ctx context.Context, subscriptionID string) (*models.RetryPaymentResult, error)
}

// Config holds the poller timings.
type Config struct {
	AutoCheckInterval time.Duration
	MaxAutoChecks     int
	TimeoutRetries    int
	TimeoutRetryDelay time.Duration
	RedirectDelay     time.Duration
	SuccessPath       string
	PlansPath         string
	Clock             clockwork.Clock
}

// ConfigFrom converts the payment config section.
func ConfigFrom(cfg *config.PaymentConfig, clock clockwork.Clock) Config {
	return Config{
		AutoCheckInterval: cfg.AutoCheckInterval,
		MaxAutoChecks:     cfg.MaxAutoChecks,
		TimeoutRetries:    cfg.TimeoutRetries,
		TimeoutRetryDelay: cfg.TimeoutRetryDelay,
		RedirectDelay:     cfg.RedirectDelay,
		SuccessPath:       cfg.SuccessPath,
		PlansPath:         cfg.PlansPath,
		Clock:             clock,
	}
}

func (c Config) withDefaults() Config {
	if c.AutoCheckInterval <= 0 {
		c.AutoCheckInterval = 10 * time.Second
	}
	if c.MaxAutoChecks <= 0 {
		c.MaxAutoChecks = 20
	}
	if c.TimeoutRetries <= 0 {
		c.TimeoutRetries = 3
	}
	if c.TimeoutRetryDelay <= 0 {
		c.TimeoutRetryDelay = 2 * time.Second
	}
	if c.RedirectDelay <= 0 {
		c.RedirectDelay = 5 * time.Second
	}
	if c.SuccessPath == "" {
		c.SuccessPath = "/account/subscription"
	}
	if c.PlansPath == "" {
		c.PlansPath = "/subscription/plans"
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Deps are the collaborators of a watch. Only API is required.
type Deps struct {
	API     API
	Markers marker.Store
	Events  events.Publisher
	UserKey string
	// MarkerKey names the user's pending marker. UserKey is used when empty.
	MarkerKey string
	// OnSuccess runs once after a confirmed payment.
	OnSuccess func()
}

// Action is a button offered to the user.
type Action struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Href  string `json:"href,omitempty"`
}

// Redirect is the post-success navigation. Ready flips once the countdown
// ends.
type Redirect struct {
	To    string    `json:"to"`
	At    time.Time `json:"at"`
	Ready bool      `json:"ready"`
}

// Snapshot is an immutable copy of a watch's state.
type Snapshot struct {
	TrackingID         string               `json:"order_tracking_id"`
	State              State                `json:"state"`
	Subscription       *models.Subscription `json:"subscription,omitempty"`
	IsPaid             bool                 `json:"is_paid"`
	IsActive           bool                 `json:"is_active"`
	RetryCount         int                  `json:"retry_count"`
	MaxAutoChecks      int                  `json:"max_auto_checks"`
	AutoCheckActive    bool                 `json:"auto_check_active"`
	AutoCheckExhausted bool                 `json:"auto_check_exhausted,omitempty"`
	ErrorKind          backend.Kind         `json:"error_kind,omitempty"`
	Message            string               `json:"message,omitempty"`
	Actions            []Action             `json:"actions,omitempty"`
	Redirect           *Redirect            `json:"redirect,omitempty"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// Settled reports whether no verification is running or about to run.
func Settled(s Snapshot) bool {
	return s.State != StateChecking && s.State != StateVerifying
}

// Watch confirms one payment. At most one verification request is in
// flight at any time. A Watch must be closed.
type Watch struct {
	trackingID string
	cfg        Config
	deps       Deps

	ctx    context.Context
	cancel context.CancelFunc
	loop   *poll.Loop
	wg     sync.WaitGroup

	inFlight  atomic.Bool
	closeOnce sync.Once

	mu       sync.Mutex
	snap     Snapshot
	closed   bool
	subs     map[int]chan Snapshot
	nextSub  int
	redirect clockwork.Timer
}

// Start creates a watch for trackingID and runs the first check in the
// background. The watch lives until Close or until ctx is done.
func Start(ctx context.Context, trackingID string, cfg Config, deps Deps) (*Watch, error) {
	if trackingID == "" {
		return nil, ErrNoTrackingID
	}
	if deps.API == nil {
		return nil, errors.New("payment watch requires an API")
	}
	cfg = cfg.withDefaults()

	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		trackingID: trackingID,
		cfg:        cfg,
		deps:       deps,
		ctx:        wctx,
		cancel:     cancel,
		subs:       make(map[int]chan Snapshot),
		snap: Snapshot{
			TrackingID:    trackingID,
			State:         StateChecking,
			MaxAutoChecks: cfg.MaxAutoChecks,
			UpdatedAt:     cfg.Clock.Now(),
		},
	}
	w.loop = poll.New(poll.Config{
		Name:     "payment_auto_check",
		Interval: cfg.AutoCheckInterval,
		Clock:    cfg.Clock,
		OnExit:   w.autoCheckExited,
	}, w.autoCheck)

	metrics.PaymentWatchesActive.Inc()
	logging.Ctx(ctx).Info().Str("order_tracking_id", trackingID).Msg("Payment watch started")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.verify(w.ctx, triggerInitial) //nolint:errcheck // outcome is in the snapshot
	}()
	return w, nil
}

// WithWatch runs fn with a started watch and always closes it.
func WithWatch(ctx context.Context, trackingID string, cfg Config, deps Deps, fn func(*Watch) error) error {
	w, err := Start(ctx, trackingID, cfg, deps)
	if err != nil {
		return err
	}
	defer w.Close()
	return fn(w)
}

// TrackingID returns the order tracking id being watched.
func (w *Watch) TrackingID() string { return w.trackingID }

// Done is closed when the watch is closed.
func (w *Watch) Done() <-chan struct{} { return w.ctx.Done() }

// Snapshot returns the current state.
func (w *Watch) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

// Subscribe returns a channel that receives the current snapshot and then
// every change. A slow reader only misses intermediate snapshots, never the
// latest one. The channel is closed by cancel or Close.
func (w *Watch) Subscribe() (<-chan Snapshot, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Snapshot, 8)
	if w.closed {
		close(ch)
		return ch, func() {}
	}
	id := w.nextSub
	w.nextSub++
	ch <- w.snap
	w.subs[id] = ch

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if c, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(c)
		}
	}
}

// WaitFor blocks until a snapshot satisfies pred.
func (w *Watch) WaitFor(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	ch, cancel := w.Subscribe()
	defer cancel()
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return w.Snapshot(), ErrClosed
			}
			if pred(s) {
				return s, nil
			}
		case <-ctx.Done():
			return w.Snapshot(), ctx.Err()
		}
	}
}

// CheckNow runs a manual check through POST check-payment-status. It
// resets the auto-check budget and may reopen a watch that ended in Error.
func (w *Watch) CheckNow(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	if err := w.verify(ctx, triggerManual); err != nil {
		return w.Snapshot(), err
	}
	return w.Snapshot(), nil
}

// RetryPayment starts a new payment attempt after a failure. The returned
// redirect URL leads to the payment provider.
func (w *Watch) RetryPayment(ctx context.Context) (*models.RetryPaymentResult, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	state, sub := w.snap.State, w.snap.Subscription
	w.mu.Unlock()

	if state != StateFailed || sub == nil || sub.ID == "" {
		return nil, ErrRetryNotAllowed
	}

	result, err := w.deps.API.RetryPayment(ctx, sub.ID.String())
	if err != nil {
		return nil, fmt.Errorf("retry payment: %w", err)
	}

	if w.deps.Markers != nil {
		trackingID := result.OrderTrackingID
		if trackingID == "" {
			trackingID = w.trackingID
		}
		m := models.PendingMarker{
			SubscriptionID:  sub.ID.String(),
			OrderTrackingID: trackingID,
			StartedAt:       w.cfg.Clock.Now().UTC(),
		}
		if err := w.deps.Markers.Put(ctx, w.markerKey(), m); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to write pending marker")
		}
	}
	logging.Ctx(ctx).Info().Str("subscription_id", sub.ID.String()).Msg("Payment retry started")
	return result, nil
}

// Close stops auto-checking, cancels the redirect countdown and any request
// in flight, and closes subscriber channels. It waits for background work
// to finish and must not be called from a subscriber callback that holds
// up the watch.
func (w *Watch) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.cancel()
		if w.redirect != nil {
			w.redirect.Stop()
		}
		for id, ch := range w.subs {
			delete(w.subs, id)
			close(ch)
		}
		state := w.snap.State
		w.mu.Unlock()

		w.loop.Stop()
		w.wg.Wait()

		metrics.PaymentWatchesActive.Dec()
		logging.Debug().Str("order_tracking_id", w.trackingID).Str("state", string(state)).Msg("Payment watch closed")
	})
}

// verify runs one check. It is a no-op returning ErrCheckInFlight while
// another check runs.
func (w *Watch) verify(ctx context.Context, trigger string) error {
	manual := trigger == triggerManual

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	prev := w.snap.State
	if prev.Terminal() && !(manual && prev == StateError) {
		w.mu.Unlock()
		metrics.PaymentChecksSkipped.WithLabelValues("terminal").Inc()
		return ErrTerminal
	}
	if !w.inFlight.CompareAndSwap(false, true) {
		w.mu.Unlock()
		metrics.PaymentChecksSkipped.WithLabelValues("in_flight").Inc()
		return ErrCheckInFlight
	}
	switch trigger {
	case triggerManual:
		w.snap.RetryCount = 0
		w.snap.AutoCheckExhausted = false
	case triggerAuto:
		w.snap.RetryCount++
	}
	w.setStateLocked(StateVerifying)
	w.snap.ErrorKind = ""
	w.publishLocked()
	w.mu.Unlock()

	metrics.PaymentChecks.WithLabelValues(trigger).Inc()
	data, err := w.fetch(ctx, manual)

	settled := w.apply(ctx, prev, data, err)
	w.afterSettle(ctx, settled)
	return nil
}

func (w *Watch) fetch(ctx context.Context, manual bool) (*models.PaymentStatusData, error) {
	policy := retry.Policy{
		Name:        "payment_timeout",
		MaxAttempts: w.cfg.TimeoutRetries,
		BaseDelay:   w.cfg.TimeoutRetryDelay,
		Strategy:    retry.Fixed,
		Retryable:   backend.IsTimeout,
		OnRetry: func(int, error, time.Duration) {
			metrics.PaymentChecks.WithLabelValues(triggerTimeoutRetry).Inc()
		},
	}
	return retry.Do(ctx, policy, func(ctx context.Context, _ int) (*models.PaymentStatusData, error) {
		if manual {
			return w.deps.API.CheckPaymentStatus(ctx, w.trackingID)
		}
		return w.deps.API.GetPaymentStatus(ctx, w.trackingID)
	})
}

// apply records the result of a check and returns the state it settled in.
// It clears the in-flight flag under the lock so the next check can only
// start from a settled state.
func (w *Watch) apply(ctx context.Context, prev State, data *models.PaymentStatusData, err error) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight.Store(false)
	if w.closed {
		return StateVerifying
	}
	defer w.publishLocked()

	if err != nil {
		switch {
		case backend.KindOf(err) == backend.KindCanceled || errors.Is(err, context.Canceled):
			// The caller gave up; nothing was learned.
			w.revertLocked(prev)
		case backend.IsRateLimited(err):
			metrics.PaymentChecksSkipped.WithLabelValues("rate_limited").Inc()
			logging.Ctx(ctx).Debug().Err(err).Msg("Payment check throttled, skipping")
			w.revertLocked(prev)
			w.snap.ErrorKind = backend.KindRateLimited
			if w.snap.State == StatePending {
				w.snap.Message = "Your payment is still being confirmed. We will check again shortly."
				w.ensureAutoCheckLocked()
			} else {
				w.snap.Message = "Too many requests. Please wait a moment and check again."
			}
		default:
			w.failLocked(ctx, err)
		}
		return w.snap.State
	}

	w.snap.Subscription = data.Subscription
	w.snap.IsPaid = data.IsPaid
	w.snap.IsActive = data.IsActive

	switch Classify(data) {
	case StateSuccess:
		w.setStateLocked(StateSuccess)
		w.stopAutoCheckLocked()
		w.snap.Message = "Payment confirmed. Your subscription is now active."
		w.snap.Actions = []Action{{Kind: ActionContinue, Label: "Start watching", Href: w.cfg.SuccessPath}}
		w.snap.Redirect = &Redirect{To: w.cfg.SuccessPath, At: w.cfg.Clock.Now().Add(w.cfg.RedirectDelay)}
		w.redirect = w.cfg.Clock.AfterFunc(w.cfg.RedirectDelay, w.redirectReady)
	case StateFailed:
		w.setStateLocked(StateFailed)
		w.stopAutoCheckLocked()
		w.snap.Message = "Your payment could not be completed."
		w.snap.Actions = []Action{
			{Kind: ActionPlans, Label: "Try Again", Href: w.cfg.PlansPath},
			{Kind: ActionRetryPayment, Label: "Retry payment"},
		}
	default:
		w.setStateLocked(StatePending)
		w.snap.Message = "Your payment is being processed. We will keep checking automatically."
		w.ensureAutoCheckLocked()
	}
	return w.snap.State
}

// revertLocked leaves Verifying for the state the check started from.
func (w *Watch) revertLocked(prev State) {
	if prev == StateChecking {
		prev = StatePending
	}
	w.setStateLocked(prev)
	if prev == StatePending {
		w.ensureAutoCheckLocked()
	}
}

func (w *Watch) failLocked(ctx context.Context, err error) {
	kind := backend.KindOf(err)
	logging.Ctx(ctx).Warn().Err(err).Str("kind", string(kind)).Str("order_tracking_id", w.trackingID).Msg("Payment verification failed")

	w.setStateLocked(StateError)
	w.stopAutoCheckLocked()
	w.snap.ErrorKind = kind
	switch kind {
	case backend.KindTimeout:
		w.snap.Message = "The payment provider is taking longer than expected. " +
			"Your payment may still go through, so check again in a minute before paying again."
		w.snap.Actions = []Action{
			{Kind: ActionCheckNow, Label: "Check again"},
			{Kind: ActionContinue, Label: "Go to my account", Href: w.cfg.SuccessPath},
		}
	case backend.KindNotFound:
		w.snap.Message = "Subscription not found."
		w.snap.Actions = []Action{{Kind: ActionPlans, Label: "View plans", Href: w.cfg.PlansPath}}
	default:
		w.snap.Message = "We could not verify your payment. Please check again."
		w.snap.Actions = []Action{{Kind: ActionCheckNow, Label: "Check again"}}
	}
}

// ensureAutoCheckLocked keeps the auto-check loop running while budget
// remains, and otherwise marks the status as unknown.
func (w *Watch) ensureAutoCheckLocked() {
	w.snap.Actions = []Action{{Kind: ActionCheckNow, Label: "Check now"}}
	if w.snap.RetryCount >= w.cfg.MaxAutoChecks {
		w.stopAutoCheckLocked()
		w.snap.AutoCheckExhausted = true
		w.snap.Message = "We could not confirm your payment status yet. Please check manually."
		return
	}
	if !w.loop.IsRunning() {
		w.loop.Start(w.ctx) //nolint:errcheck // Start only fails on misuse
	}
	w.snap.AutoCheckActive = true
}

func (w *Watch) stopAutoCheckLocked() {
	w.loop.Halt()
	w.snap.AutoCheckActive = false
}

func (w *Watch) setStateLocked(to State) {
	from := w.snap.State
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		logging.Warn().Str("from", string(from)).Str("to", string(to)).Str("order_tracking_id", w.trackingID).Msg("Ignoring invalid payment transition")
		return
	}
	w.snap.State = to
	metrics.RecordPaymentTransition(string(from), string(to))
}

// publishLocked fans the current snapshot out to subscribers, replacing
// any snapshot a subscriber has not read yet.
func (w *Watch) publishLocked() {
	w.snap.UpdatedAt = w.cfg.Clock.Now()
	s := w.snap
	for _, ch := range w.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (w *Watch) autoCheck(ctx context.Context, _ int) bool {
	err := w.verify(ctx, triggerAuto)
	if errors.Is(err, ErrTerminal) || errors.Is(err, ErrClosed) {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.State.Terminal() || w.snap.AutoCheckExhausted
}

func (w *Watch) autoCheckExited(reason poll.ExitReason, ticks int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	running := w.loop.IsRunning()
	if w.snap.AutoCheckActive != running {
		w.snap.AutoCheckActive = running
		w.publishLocked()
	}
	logging.Debug().Str("order_tracking_id", w.trackingID).Str("reason", string(reason)).Int("ticks", ticks).Msg("Payment auto-check stopped")
}

func (w *Watch) redirectReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.snap.Redirect == nil {
		return
	}
	r := *w.snap.Redirect
	r.Ready = true
	w.snap.Redirect = &r
	w.publishLocked()
}

// afterSettle runs the side effects of a terminal outcome outside the lock.
func (w *Watch) afterSettle(ctx context.Context, state State) {
	if state != StateSuccess && state != StateFailed {
		return
	}
	snap := w.Snapshot()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if state == StateSuccess {
		w.clearMarker(ctx)
		if w.deps.OnSuccess != nil {
			w.deps.OnSuccess()
		}
	}

	logging.Ctx(ctx).Info().Str("order_tracking_id", w.trackingID).Str("state", string(state)).Msg("Payment settled")

	if w.deps.Events == nil {
		return
	}
	event := events.NewPaymentEvent(string(state), w.deps.UserKey, w.trackingID, w.cfg.Clock.Now())
	if snap.Subscription != nil {
		event.SubscriptionID = snap.Subscription.ID.String()
		event.PaymentStatus = string(snap.Subscription.PaymentStatus.Normalize())
		event.Status = string(snap.Subscription.Status.Normalize())
	}
	if err := w.deps.Events.PublishPayment(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to publish payment event")
	}
}

func (w *Watch) markerKey() string {
	if w.deps.MarkerKey != "" {
		return w.deps.MarkerKey
	}
	return w.deps.UserKey
}

// clearMarker removes the pending marker if it records this watch's order.
// A marker for a newer purchase is left alone.
func (w *Watch) clearMarker(ctx context.Context) {
	if w.deps.Markers == nil {
		return
	}
	key := w.markerKey()
	m, err := w.deps.Markers.Get(ctx, key)
	if errors.Is(err, marker.ErrNotFound) {
		return
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("marker", marker.Name).Msg("Failed to read pending marker")
		return
	}
	if m.OrderTrackingID != w.trackingID {
		logging.Ctx(ctx).Debug().
			Str("order_tracking_id", w.trackingID).
			Str("marker_tracking_id", m.OrderTrackingID).
			Msg("Pending marker belongs to another order, keeping it")
		return
	}
	if err := w.deps.Markers.Clear(ctx, key); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("marker", marker.Name).Msg("Failed to clear pending marker")
	}
}
