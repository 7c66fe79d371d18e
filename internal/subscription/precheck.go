// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/marker"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// DefaultPendingPath is where a user with an unconfirmed purchase is sent.
const DefaultPendingPath = "/subscription/pending"

// Pre-check stages and outcomes used for logging and metrics.
const (
	stagePlans    = "plans"
	stagePurchase = "purchase"

	outcomeClear    = "clear"
	outcomePending  = "pending"
	outcomeDegraded = "degraded"
	outcomeError    = "error"
)

// ErrPurchasePending matches a *PendingPurchaseError with errors.Is.
var ErrPurchasePending = errors.New("a purchase is already awaiting payment")

// Redirect is a navigation instruction for the client. FullReload asks for a
// full page load instead of an in-app route change so no stale view state
// survives.
type Redirect struct {
	To         string `json:"to"`
	FullReload bool   `json:"full_reload"`
}

// PendingPurchaseError is returned by Purchase when the backend already has
// a purchase awaiting payment.
type PendingPurchaseError struct {
	Redirect     Redirect
	Subscription *models.Subscription
}

func (e *PendingPurchaseError) Error() string { return ErrPurchasePending.Error() }

// Is makes errors.Is(err, ErrPurchasePending) work.
func (e *PendingPurchaseError) Is(target error) bool { return target == ErrPurchasePending }

// PlansOutcome tells the plans view what to do.
type PlansOutcome struct {
	// ShowPlans is false when the user must be sent to the pending view.
	ShowPlans bool `json:"show_plans"`
	// Degraded is set when the pending check itself failed with a 5xx or 404
	// and plans are shown anyway.
	Degraded bool                 `json:"degraded,omitempty"`
	Redirect *Redirect            `json:"redirect,omitempty"`
	Pending  *models.Subscription `json:"pending_subscription,omitempty"`
	Plans    []models.Plan        `json:"plans,omitempty"`
}

// PurchaseAPI is the subset of the backend client the pre-check uses.
type PurchaseAPI interface {
	GetPendingSubscription(ctx context.Context) (*models.PendingCheck, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
	Subscribe(ctx context.Context, planID string) (*models.PurchaseResult, error)
}

// PreCheck guards the plans view and the purchase call against starting a
// second purchase while one is unconfirmed. The pending state is always
// read from the backend; it is never cached.
type PreCheck struct {
	api         PurchaseAPI
	markers     marker.Store
	markerKey   string
	pendingPath string
	clock       clockwork.Clock
}

// NewPreCheck creates a pre-check for one user. markerKey names the user's
// pending marker and should outlive a single token. markers may be nil.
func NewPreCheck(api PurchaseAPI, markers marker.Store, markerKey, pendingPath string, clock clockwork.Clock) *PreCheck {
	if pendingPath == "" {
		pendingPath = DefaultPendingPath
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PreCheck{
		api:         api,
		markers:     markers,
		markerKey:   markerKey,
		pendingPath: pendingPath,
		clock:       clock,
	}
}

// BeforePlans runs the pending check once. A pending purchase yields a full
// reload redirect to the pending view. 5xx and 404 failures degrade to
// showing plans; any other failure is returned.
func (p *PreCheck) BeforePlans(ctx context.Context) (PlansOutcome, error) {
	return p.check(ctx, stagePlans)
}

// Plans runs BeforePlans and lists plans only when they may be shown.
func (p *PreCheck) Plans(ctx context.Context) (PlansOutcome, error) {
	out, err := p.BeforePlans(ctx)
	if err != nil || !out.ShowPlans {
		return out, err
	}
	plans, err := p.api.ListPlans(ctx)
	if err != nil {
		return out, fmt.Errorf("list plans: %w", err)
	}
	out.Plans = plans
	return out, nil
}

// Purchase re-runs the pending check immediately before subscribing. On
// success the pending marker is written so the confirmation view can find
// the order.
func (p *PreCheck) Purchase(ctx context.Context, planID string) (*models.PurchaseResult, error) {
	out, err := p.check(ctx, stagePurchase)
	if err != nil {
		return nil, err
	}
	if !out.ShowPlans {
		return nil, &PendingPurchaseError{Redirect: *out.Redirect, Subscription: out.Pending}
	}

	result, err := p.api.Subscribe(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	if p.markers != nil {
		m := models.PendingMarker{
			SubscriptionID:  result.SubscriptionID.String(),
			OrderTrackingID: result.OrderTrackingID,
			StartedAt:       p.clock.Now().UTC(),
		}
		if err := p.markers.Put(ctx, p.markerKey, m); err != nil {
			// The purchase went through; the confirmation view falls back
			// to the tracking id in its URL.
			logging.Ctx(ctx).Warn().Err(err).Str("marker", marker.Name).Msg("Failed to write pending marker")
		}
	}

	logging.Ctx(ctx).Info().
		Str("plan_id", planID).
		Str("order_tracking_id", result.OrderTrackingID).
		Msg("Purchase started")
	return result, nil
}

// PendingMarker returns the locally recorded purchase, if any. The marker
// key may come from an unverified token claim, so a marker is only
// returned once the backend has not rejected the token.
func (p *PreCheck) PendingMarker(ctx context.Context) (*models.PendingMarker, error) {
	if p.markers == nil {
		return nil, nil
	}
	m, err := p.markers.Get(ctx, p.markerKey)
	if errors.Is(err, marker.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := p.api.GetPendingSubscription(ctx); backend.IsUnauthorized(err) {
		return nil, fmt.Errorf("pending check: %w", err)
	}
	return &m, nil
}

func (p *PreCheck) check(ctx context.Context, stage string) (PlansOutcome, error) {
	pending, err := p.api.GetPendingSubscription(ctx)
	if err != nil {
		if backend.IsServerError(err) || backend.IsNotFound(err) {
			logging.Ctx(ctx).Warn().Err(err).Str("stage", stage).Msg("Pending check unavailable, continuing")
			metrics.RecordPreCheck(stage, outcomeDegraded)
			return PlansOutcome{ShowPlans: true, Degraded: true}, nil
		}
		metrics.RecordPreCheck(stage, outcomeError)
		return PlansOutcome{}, fmt.Errorf("pending check: %w", err)
	}

	if pending == nil || !pending.HasPending {
		metrics.RecordPreCheck(stage, outcomeClear)
		return PlansOutcome{ShowPlans: true}, nil
	}

	metrics.RecordPreCheck(stage, outcomePending)
	logging.Ctx(ctx).Info().Str("stage", stage).Msg("Pending purchase found, redirecting")
	return PlansOutcome{
		ShowPlans: false,
		Redirect:  &Redirect{To: p.pendingPath, FullReload: true},
		Pending:   pending.PendingSubscription,
	}, nil
}
