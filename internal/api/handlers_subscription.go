// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// Manifest returns the user's manifest, from cache while it is fresh.
//
// @Summary Get manifest
// @Tags Subscription
// @Produce json
// @Param refresh query bool false "Bypass the cache"
// @Success 200 {object} models.APIResponse{data=models.ManifestData}
// @Failure 401,429,502,503 {object} models.APIResponse
// @Router /manifest [get]
func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	e := engineFrom(r.Context())
	ctx, cancel := requestContext(r, e)
	defer cancel()

	refresh := boolParam(r, "refresh")
	prev, had := e.Manifest().Peek()
	entry, err := e.Manifest().GetEntry(ctx, refresh)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	cached := had && !refresh && entry.FetchedAt.Equal(prev.FetchedAt)
	respondData(w, http.StatusOK, entry.Value, start, cached)
}

// SubscriptionStatus returns the resolved subscription status.
//
// @Summary Get subscription status
// @Tags Subscription
// @Produce json
// @Success 200 {object} models.APIResponse{data=subscription.StatusView}
// @Failure 401,429,502,503 {object} models.APIResponse
// @Router /subscription/status [get]
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	e := engineFrom(r.Context())
	ctx, cancel := requestContext(r, e)
	defer cancel()

	st, err := e.Resolver().Status(ctx)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondData(w, http.StatusOK, st.View(e.Resolver().ExpiringSoonDays()), start, false)
}

// SubscriptionRefresh drops the cached manifest and resolves again.
//
// @Summary Refresh subscription status
// @Tags Subscription
// @Produce json
// @Success 200 {object} models.APIResponse{data=subscription.StatusView}
// @Failure 401,429,502,503 {object} models.APIResponse
// @Router /subscription/refresh [post]
func (h *Handler) SubscriptionRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	e := engineFrom(r.Context())
	ctx, cancel := requestContext(r, e)
	defer cancel()

	st, err := e.Resolver().RefreshStatus(ctx)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondData(w, http.StatusOK, st.View(e.Resolver().ExpiringSoonDays()), start, false)
}

// PendingMarker returns the purchase this gateway last started for the
// user, if it has not been confirmed yet.
//
// @Summary Get the locally recorded pending purchase
// @Tags Subscription
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.PendingMarker}
// @Router /subscription/pending [get]
func (h *Handler) PendingMarker(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	e := engineFrom(r.Context())

	m, err := e.PreCheck().PendingMarker(r.Context())
	if err != nil {
		if backend.IsUnauthorized(err) {
			respondFailure(w, r, err)
			return
		}
		respondError(w, http.StatusInternalServerError, codeInternal, "Failed to read pending purchase", err)
		return
	}
	respondData(w, http.StatusOK, m, start, false)
}

// Access evaluates a guard for one protected view. Each request gets its
// own guard, so concurrent views never see each other's Loading state. The
// decision is always a 200; denial is a state, not an error.
//
// @Summary Evaluate access to protected content
// @Tags Subscription
// @Produce json
// @Param retry query bool false "Re-run after a verification failure"
// @Success 200 {object} models.APIResponse{data=subscription.Decision}
// @Router /access [get]
func (h *Handler) Access(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	e := engineFrom(r.Context())
	ctx, cancel := requestContext(r, e)
	defer cancel()

	guard := e.NewGuard()
	decision := guard.Evaluate
	if boolParam(r, "retry") {
		decision = guard.Retry
	}
	respondData(w, http.StatusOK, decision(ctx), start, false)
}

// Plans runs the pending-purchase pre-check and lists plans when they may
// be shown. A pending purchase returns a redirect instead of plans.
//
// @Summary List plans
// @Tags Subscription
// @Produce json
// @Success 200 {object} models.APIResponse{data=subscription.PlansOutcome}
// @Failure 401,429,502,503 {object} models.APIResponse
// @Router /plans [get]
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	e := engineFrom(r.Context())
	ctx, cancel := requestContext(r, e)
	defer cancel()

	out, err := e.PreCheck().Plans(ctx)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondData(w, http.StatusOK, out, start, false)
}

// Purchase starts a subscription purchase after re-checking for a pending
// one.
//
// @Summary Start a purchase
// @Tags Subscription
// @Accept json
// @Produce json
// @Param request body models.SubscribeRequest true "Plan to buy"
// @Success 201 {object} models.APIResponse{data=models.PurchaseResult}
// @Failure 400,401,429,502,503 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse "A purchase is already pending"
// @Router /subscriptions [post]
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	e := engineFrom(r.Context())

	var req models.SubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := requestContext(r, e)
	defer cancel()
	result, err := e.PreCheck().Purchase(ctx, req.PlanID)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, result, start, false)
}
