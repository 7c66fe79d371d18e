// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package models

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// SubscriptionStatus is the lifecycle status reported by the backend.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "Active"
	StatusExpired   SubscriptionStatus = "Expired"
	StatusCancelled SubscriptionStatus = "Cancelled"
	StatusPending   SubscriptionStatus = "Pending"
	StatusFailed    SubscriptionStatus = "Failed"
	StatusUnknown   SubscriptionStatus = "Unknown"
)

// Normalize maps case variants onto the known constants and anything
// unrecognised onto StatusUnknown.
func (s SubscriptionStatus) Normalize() SubscriptionStatus {
	for _, known := range []SubscriptionStatus{StatusActive, StatusExpired, StatusCancelled, StatusPending, StatusFailed} {
		if strings.EqualFold(string(s), string(known)) {
			return known
		}
	}
	return StatusUnknown
}

// PaymentStatus is the payment provider outcome attached to a subscription.
type PaymentStatus string

const (
	PaymentCompleted  PaymentStatus = "Completed"
	PaymentProcessing PaymentStatus = "Processing"
	PaymentPending    PaymentStatus = "Pending"
	PaymentFailed     PaymentStatus = "Failed"
	PaymentReversed   PaymentStatus = "Reversed"
	PaymentInvalid    PaymentStatus = "Invalid"
)

// Normalize maps case variants onto the known constants. Unknown values are
// returned unchanged so callers can log them.
func (p PaymentStatus) Normalize() PaymentStatus {
	for _, known := range []PaymentStatus{PaymentCompleted, PaymentProcessing, PaymentPending, PaymentFailed, PaymentReversed, PaymentInvalid} {
		if strings.EqualFold(string(p), string(known)) {
			return known
		}
	}
	return p
}

// ManifestSubscription is the server-computed access summary. The gateway
// trusts it verbatim and never recomputes expiry from EndDate.
type ManifestSubscription struct {
	HasActiveSubscription bool               `json:"has_active_subscription"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	DaysRemaining         int                `json:"days_remaining" validate:"gte=0"`
	// HoursRemaining is only meaningful while DaysRemaining is 0-2.
	HoursRemaining      int        `json:"hours_remaining" validate:"gte=0"`
	IsInGracePeriod     bool       `json:"is_in_grace_period"`
	EndDate             *Timestamp `json:"end_date"`
	RequireSubscription bool       `json:"require_subscription"`
}

// ManifestData is the payload of GET manifest. TopMovie and Lists are
// passed through untouched.
type ManifestData struct {
	Subscription *ManifestSubscription `json:"subscription" validate:"required"`
	TopMovie     json.RawMessage       `json:"top_movie,omitempty"`
	Lists        json.RawMessage       `json:"lists,omitempty"`
}

// Subscription is the snapshot returned by the subscriptions endpoints.
type Subscription struct {
	ID              ID                 `json:"id"`
	PlanID          ID                 `json:"plan_id,omitempty"`
	PlanName        string             `json:"plan_name,omitempty"`
	Status          SubscriptionStatus `json:"status"`
	PaymentStatus   PaymentStatus      `json:"payment_status"`
	OrderTrackingID string             `json:"order_tracking_id,omitempty"`
	Amount          float64            `json:"amount,omitempty" validate:"gte=0"`
	Currency        string             `json:"currency,omitempty"`
	StartDate       *Timestamp         `json:"start_date,omitempty"`
	EndDate         *Timestamp         `json:"end_date,omitempty"`
	CreatedAt       *Timestamp         `json:"created_at,omitempty"`
}

// PaymentStatusData is the payload of the payment-status and
// check-payment-status endpoints.
type PaymentStatusData struct {
	Subscription *Subscription         `json:"subscription" validate:"required"`
	Manifest     *ManifestSubscription `json:"manifest,omitempty"`
	IsActive     bool                  `json:"is_active"`
	IsPaid       bool                  `json:"is_paid"`
}

// PendingCheck is the payload of GET subscriptions/pending. Never cached.
type PendingCheck struct {
	HasPending          bool          `json:"has_pending"`
	PendingSubscription *Subscription `json:"pending_subscription"`
}

// RetryPaymentResult is the payload of POST subscriptions/retry-payment.
type RetryPaymentResult struct {
	RedirectURL     string `json:"redirect_url" validate:"required,url"`
	OrderTrackingID string `json:"order_tracking_id,omitempty"`
}

// SubscribeRequest is the gateway body for starting a purchase.
type SubscribeRequest struct {
	PlanID string `json:"plan_id" validate:"required,max=64"`
}

// PurchaseResult is the payload of POST subscriptions/subscribe.
type PurchaseResult struct {
	SubscriptionID  ID     `json:"subscription_id" validate:"required"`
	OrderTrackingID string `json:"order_tracking_id" validate:"required"`
	RedirectURL     string `json:"redirect_url" validate:"required,url"`
}

// Plan is a purchasable subscription plan.
type Plan struct {
	ID           ID       `json:"id" validate:"required"`
	Name         string   `json:"name" validate:"required"`
	Price        float64  `json:"price" validate:"gte=0"`
	Currency     string   `json:"currency"`
	DurationDays int      `json:"duration_days" validate:"gte=0"`
	Features     []string `json:"features,omitempty"`
}

// PendingMarker records a purchase awaiting confirmation. It is written when
// a purchase starts and cleared when the payment is confirmed.
type PendingMarker struct {
	SubscriptionID  string    `json:"subscription_id"`
	OrderTrackingID string    `json:"order_tracking_id"`
	StartedAt       time.Time `json:"started_at"`
}
