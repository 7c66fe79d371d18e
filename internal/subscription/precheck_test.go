// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package subscription

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/marker"
	"github.com/tomtom215/ugflix-gateway/internal/models"
	"github.com/tomtom215/ugflix-gateway/internal/testinfra"
)

func newTestPreCheck(t *testing.T) (*PreCheck, *testinfra.FakeBackend, marker.Store) {
	t.Helper()
	fb := testinfra.NewFakeBackend(t)
	client, err := backend.New(fb.Config())
	if err != nil {
		t.Fatalf("backend.New() error = %v", err)
	}
	clock := clockwork.NewFakeClockAt(testNow)
	store := marker.NewMemoryStore(30*time.Minute, clock)
	return NewPreCheck(client.ForUser("token"), store, "user-1", "/pending", clock), fb, store
}

var testPlans = []models.Plan{
	{ID: "basic", Name: "Basic", Price: 15000, Currency: "UGX", DurationDays: 30},
	{ID: "premium", Name: "Premium", Price: 30000, Currency: "UGX", DurationDays: 30},
}

func TestPreCheck_PendingRedirects(t *testing.T) {
	t.Parallel()

	pc, fb, _ := newTestPreCheck(t)
	fb.On(http.MethodGet, "subscriptions/pending", testinfra.OK(models.PendingCheck{
		HasPending:          true,
		PendingSubscription: &models.Subscription{ID: "sub-9", Status: models.StatusPending},
	}))
	fb.On(http.MethodGet, "subscriptions/plans", testinfra.OK(testPlans))

	out, err := pc.Plans(context.Background())
	if err != nil {
		t.Fatalf("Plans() error = %v", err)
	}
	if out.ShowPlans || len(out.Plans) != 0 {
		t.Errorf("plans must not render while a purchase is pending: %+v", out)
	}
	if out.Redirect == nil || out.Redirect.To != "/pending" || !out.Redirect.FullReload {
		t.Errorf("Redirect = %+v, want full reload to /pending", out.Redirect)
	}
	if out.Pending == nil || out.Pending.ID != "sub-9" {
		t.Errorf("Pending = %+v", out.Pending)
	}
	if got := fb.Hits(http.MethodGet, "subscriptions/plans"); got != 0 {
		t.Errorf("plans fetched %d times, want 0", got)
	}
}

func TestPreCheck_ClearListsPlans(t *testing.T) {
	t.Parallel()

	pc, fb, _ := newTestPreCheck(t)
	fb.On(http.MethodGet, "subscriptions/pending", testinfra.OK(models.PendingCheck{HasPending: false}))
	fb.On(http.MethodGet, "subscriptions/plans", testinfra.OK(testPlans))

	out, err := pc.Plans(context.Background())
	if err != nil {
		t.Fatalf("Plans() error = %v", err)
	}
	if !out.ShowPlans || out.Degraded || out.Redirect != nil {
		t.Errorf("outcome = %+v", out)
	}
	if len(out.Plans) != 2 || out.Plans[1].ID != "premium" {
		t.Errorf("Plans = %+v", out.Plans)
	}
}

func TestPreCheck_Degrades(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusNotFound} {
		pc, fb, _ := newTestPreCheck(t)
		fb.On(http.MethodGet, "subscriptions/pending", testinfra.Status(status))

		out, err := pc.BeforePlans(context.Background())
		if err != nil {
			t.Errorf("%d: BeforePlans() error = %v, want degrade", status, err)
			continue
		}
		if !out.ShowPlans || !out.Degraded {
			t.Errorf("%d: outcome = %+v, want degraded plans", status, out)
		}
	}
}

func TestPreCheck_OtherErrorsPropagate(t *testing.T) {
	t.Parallel()

	pc, fb, _ := newTestPreCheck(t)
	fb.On(http.MethodGet, "subscriptions/pending", testinfra.Status(http.StatusUnauthorized))

	_, err := pc.BeforePlans(context.Background())
	if !backend.IsUnauthorized(err) {
		t.Errorf("BeforePlans() error = %v, want unauthorized", err)
	}
}

func TestPreCheck_PurchaseRechecks(t *testing.T) {
	t.Parallel()

	pc, fb, store := newTestPreCheck(t)
	fb.On(http.MethodGet, "subscriptions/pending",
		testinfra.OK(models.PendingCheck{HasPending: false}),
		testinfra.OK(models.PendingCheck{HasPending: true}),
	)
	fb.On(http.MethodPost, "subscriptions/subscribe", testinfra.OK(models.PurchaseResult{
		SubscriptionID: "sub-1", OrderTrackingID: "trk-1", RedirectURL: "https://pay.example.com/trk-1",
	}))

	ctx := context.Background()
	if _, err := pc.BeforePlans(ctx); err != nil {
		t.Fatalf("BeforePlans() error = %v", err)
	}

	// A second tab started a purchase in between.
	_, err := pc.Purchase(ctx, "basic")
	if !errors.Is(err, ErrPurchasePending) {
		t.Fatalf("Purchase() error = %v, want ErrPurchasePending", err)
	}
	var pending *PendingPurchaseError
	if !errors.As(err, &pending) || pending.Redirect.To != "/pending" {
		t.Errorf("error = %#v, want redirect to /pending", err)
	}
	if got := fb.Hits(http.MethodPost, "subscriptions/subscribe"); got != 0 {
		t.Errorf("subscribe called %d times, want 0", got)
	}
	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, marker.ErrNotFound) {
		t.Errorf("marker written for a rejected purchase: %v", err)
	}
}

func TestPreCheck_PurchaseWritesMarker(t *testing.T) {
	t.Parallel()

	pc, fb, _ := newTestPreCheck(t)
	fb.On(http.MethodGet, "subscriptions/pending", testinfra.OK(models.PendingCheck{}))
	fb.On(http.MethodPost, "subscriptions/subscribe", testinfra.OK(models.PurchaseResult{
		SubscriptionID: "sub-1", OrderTrackingID: "trk-1", RedirectURL: "https://pay.example.com/trk-1",
	}))

	ctx := context.Background()
	result, err := pc.Purchase(ctx, "basic")
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if result.OrderTrackingID != "trk-1" {
		t.Errorf("OrderTrackingID = %q", result.OrderTrackingID)
	}

	caps := fb.Captures()
	last := caps[len(caps)-1]
	if last.Path != "subscriptions/subscribe" || string(last.Body) != `{"plan_id":"basic"}` {
		t.Errorf("subscribe request = %s %s", last.Path, last.Body)
	}

	m, err := pc.PendingMarker(ctx)
	if err != nil || m == nil {
		t.Fatalf("PendingMarker() = %v, %v", m, err)
	}
	if m.SubscriptionID != "sub-1" || m.OrderTrackingID != "trk-1" || !m.StartedAt.Equal(testNow) {
		t.Errorf("marker = %+v", m)
	}
}

func TestPreCheck_PendingMarkerRequiresAcceptedToken(t *testing.T) {
	t.Parallel()

	pc, fb, store := newTestPreCheck(t)
	ctx := context.Background()
	if err := store.Put(ctx, "user-1", models.PendingMarker{SubscriptionID: "sub-1", OrderTrackingID: "trk-1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	fb.On(http.MethodGet, "subscriptions/pending", testinfra.Status(http.StatusUnauthorized))

	m, err := pc.PendingMarker(ctx)
	if m != nil || !backend.IsUnauthorized(err) {
		t.Errorf("PendingMarker() = %v, %v, want nil and unauthorized", m, err)
	}

	// Outages do not hide the marker from the confirmation view.
	fb.On(http.MethodGet, "subscriptions/pending", testinfra.Status(http.StatusServiceUnavailable))
	m, err = pc.PendingMarker(ctx)
	if err != nil || m == nil || m.OrderTrackingID != "trk-1" {
		t.Errorf("PendingMarker() during outage = %v, %v", m, err)
	}
}

func TestPreCheck_NoMarkerStore(t *testing.T) {
	t.Parallel()

	pc := NewPreCheck(nil, nil, "user-1", "", nil)
	m, err := pc.PendingMarker(context.Background())
	if m != nil || err != nil {
		t.Errorf("PendingMarker() = %v, %v, want nil, nil", m, err)
	}
	if pc.pendingPath != DefaultPendingPath {
		t.Errorf("pendingPath = %q", pc.pendingPath)
	}
}
