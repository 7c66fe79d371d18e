// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package subscription

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// DefaultExpiringSoonDays is the IsExpiringSoon threshold when none is given.
const DefaultExpiringSoonDays = 7

// ErrNoSubscription is returned by Status when the manifest has no
// subscription object.
var ErrNoSubscription = &backend.Error{
	Kind:     backend.KindMalformed,
	Endpoint: backend.EndpointManifest,
	Message:  "manifest has no subscription",
}

// Resolver answers access questions from the cached manifest. The boolean
// queries fail closed: any error reads as "no access".
type Resolver struct {
	cache            *ManifestCache
	clock            clockwork.Clock
	expiringSoonDays int
}

// NewResolver creates a resolver over cache.
func NewResolver(cache *ManifestCache, clock clockwork.Clock, expiringSoonDays int) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if expiringSoonDays <= 0 {
		expiringSoonDays = DefaultExpiringSoonDays
	}
	return &Resolver{cache: cache, clock: clock, expiringSoonDays: expiringSoonDays}
}

// ExpiringSoonDays returns the configured default threshold.
func (r *Resolver) ExpiringSoonDays() int { return r.expiringSoonDays }

// Status returns the current snapshot, surfacing errors. Guards and
// handlers use it; everything else uses the fail-closed helpers below.
func (r *Resolver) Status(ctx context.Context) (Status, error) {
	return r.status(ctx, false)
}

// RefreshStatus is Status with a forced manifest refresh.
func (r *Resolver) RefreshStatus(ctx context.Context) (Status, error) {
	return r.status(ctx, true)
}

func (r *Resolver) status(ctx context.Context, force bool) (Status, error) {
	entry, err := r.cache.GetEntry(ctx, force)
	if err != nil {
		return Status{}, err
	}
	if entry.Value == nil || entry.Value.Subscription == nil {
		return Status{}, ErrNoSubscription
	}
	return NewStatus(*entry.Value.Subscription, entry.FetchedAt, r.clock.Now()), nil
}

// HasActiveSubscription returns has_active_subscription, or false on any
// failure.
func (r *Resolver) HasActiveSubscription(ctx context.Context) bool {
	st, ok := r.failClosed(ctx, "has_active")
	return ok && st.IsActive()
}

// Details returns a copy of the manifest subscription, or nil on any failure.
func (r *Resolver) Details(ctx context.Context) *models.ManifestSubscription {
	st, ok := r.failClosed(ctx, "details")
	if !ok {
		return nil
	}
	sub := st.Subscription()
	return &sub
}

// IsExpiringSoon reports an active subscription with
// 0 < days_remaining <= thresholdDays. A threshold of zero or less uses the
// configured default.
func (r *Resolver) IsExpiringSoon(ctx context.Context, thresholdDays int) bool {
	if thresholdDays <= 0 {
		thresholdDays = r.expiringSoonDays
	}
	st, ok := r.failClosed(ctx, "expiring_soon")
	return ok && st.ExpiringSoon(thresholdDays)
}

// IsInGracePeriod returns is_in_grace_period, or false on any failure.
func (r *Resolver) IsInGracePeriod(ctx context.Context) bool {
	st, ok := r.failClosed(ctx, "grace_period")
	return ok && st.IsInGracePeriod()
}

// Refresh forces a manifest fetch, bypassing the TTL.
func (r *Resolver) Refresh(ctx context.Context) (*models.ManifestData, error) {
	return r.cache.Get(ctx, true)
}

// Invalidate drops the cached manifest.
func (r *Resolver) Invalidate() {
	r.cache.Invalidate()
}

func (r *Resolver) failClosed(ctx context.Context, query string) (Status, bool) {
	st, err := r.Status(ctx)
	if err != nil {
		event := logging.Ctx(ctx).Warn()
		if errors.Is(err, context.Canceled) || backend.KindOf(err) == backend.KindCanceled {
			event = logging.Ctx(ctx).Debug()
		}
		event.Err(err).Str("query", query).Str("kind", string(backend.KindOf(err))).Msg("Subscription lookup failed, denying")
		return Status{}, false
	}
	return st, true
}
