// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/ugflix-gateway/internal/payment"
	"github.com/tomtom215/ugflix-gateway/internal/session"
)

// trackingParam reads and validates the {trackingID} path parameter.
func trackingParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "trackingID")
	return id, validatePathParam(w, "order_tracking_id", id, "required,tracking_id")
}

// openWatch finds the user's watch or answers 404.
func openWatch(w http.ResponseWriter, e *session.Engine, trackingID string) (*payment.Watch, bool) {
	watch, ok := e.Payment(trackingID)
	if !ok {
		respondError(w, http.StatusNotFound, codeNotFound, "No payment watch for this order; start one first", nil)
		return nil, false
	}
	return watch, true
}

// WatchPayment starts confirming a payment, or returns the watch already
// running for the order. Progress is pushed on the websocket stream.
//
// @Summary Start or join a payment watch
// @Tags Payments
// @Produce json
// @Param trackingID path string true "Order tracking id"
// @Success 200 {object} models.APIResponse{data=payment.Snapshot} "Existing watch"
// @Success 201 {object} models.APIResponse{data=payment.Snapshot} "New watch"
// @Failure 400,401,503 {object} models.APIResponse
// @Router /payments/{trackingID}/watch [post]
func (h *Handler) WatchPayment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	trackingID, ok := trackingParam(w, r)
	if !ok {
		return
	}
	e := engineFrom(r.Context())

	watch, created, err := e.WatchPayment(trackingID)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondData(w, status, watch.Snapshot(), start, false)
}

// GetPayment returns the current snapshot of a watch.
//
// @Summary Get payment watch state
// @Tags Payments
// @Produce json
// @Param trackingID path string true "Order tracking id"
// @Success 200 {object} models.APIResponse{data=payment.Snapshot}
// @Failure 400,401,404 {object} models.APIResponse
// @Router /payments/{trackingID} [get]
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	trackingID, ok := trackingParam(w, r)
	if !ok {
		return
	}
	watch, ok := openWatch(w, engineFrom(r.Context()), trackingID)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, watch.Snapshot(), start, false)
}

// CheckPayment runs a manual check. Backend failures settle into the
// snapshot's state; only a check already running or a settled watch is an
// error.
//
// @Summary Check payment now
// @Tags Payments
// @Produce json
// @Param trackingID path string true "Order tracking id"
// @Success 200 {object} models.APIResponse{data=payment.Snapshot}
// @Failure 400,401,404 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse "Check in flight or watch settled"
// @Router /payments/{trackingID}/check [post]
func (h *Handler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	trackingID, ok := trackingParam(w, r)
	if !ok {
		return
	}
	e := engineFrom(r.Context())
	watch, ok := openWatch(w, e, trackingID)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r, e)
	defer cancel()
	snap, err := watch.CheckNow(ctx)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondData(w, http.StatusOK, snap, start, false)
}

// RetryPayment starts a new payment attempt after a failure and returns the
// provider redirect.
//
// @Summary Retry a failed payment
// @Tags Payments
// @Produce json
// @Param trackingID path string true "Order tracking id"
// @Success 200 {object} models.APIResponse{data=models.RetryPaymentResult}
// @Failure 400,401,404,429,502,503 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse "Payment has not failed"
// @Router /payments/{trackingID}/retry [post]
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	trackingID, ok := trackingParam(w, r)
	if !ok {
		return
	}
	e := engineFrom(r.Context())
	watch, ok := openWatch(w, e, trackingID)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r, e)
	defer cancel()
	result, err := watch.RetryPayment(ctx)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondData(w, http.StatusOK, result, start, false)
}

// StopPayment closes a watch. Leaving the confirmation view calls this so
// no checks run after the user is gone.
//
// @Summary Stop a payment watch
// @Tags Payments
// @Param trackingID path string true "Order tracking id"
// @Success 204
// @Failure 400,401,404 {object} models.APIResponse
// @Router /payments/{trackingID} [delete]
func (h *Handler) StopPayment(w http.ResponseWriter, r *http.Request) {
	trackingID, ok := trackingParam(w, r)
	if !ok {
		return
	}
	if !engineFrom(r.Context()).StopPayment(trackingID) {
		respondError(w, http.StatusNotFound, codeNotFound, "No payment watch for this order", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
