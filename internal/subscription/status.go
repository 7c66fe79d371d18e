// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package subscription

import (
	"fmt"
	"time"

	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// AccessLevel is the single access classification of a manifest snapshot.
type AccessLevel string

const (
	AccessActive      AccessLevel = "active"
	AccessGracePeriod AccessLevel = "grace_period"
	AccessExpired     AccessLevel = "expired"
	AccessPending     AccessLevel = "pending"
	AccessUnknown     AccessLevel = "unknown"
)

// nearExpiryDays is the window in which hours_remaining is meaningful.
const nearExpiryDays = 2

// Status is an immutable snapshot of the manifest subscription. Every
// derived value is a method so it cannot drift from the snapshot.
type Status struct {
	sub       models.ManifestSubscription
	fetchedAt time.Time
	asOf      time.Time
}

// NewStatus wraps a manifest subscription observed at asOf.
//
//nolint:gocritic // snapshot is copied on purpose
func NewStatus(sub models.ManifestSubscription, fetchedAt, asOf time.Time) Status {
	return Status{sub: sub, fetchedAt: fetchedAt, asOf: asOf}
}

// Subscription returns a copy of the underlying server data.
func (s Status) Subscription() models.ManifestSubscription { return s.sub }

// FetchedAt is when the manifest was fetched from the backend.
func (s Status) FetchedAt() time.Time { return s.fetchedAt }

// IsActive reports has_active_subscription.
func (s Status) IsActive() bool { return s.sub.HasActiveSubscription }

// IsInGracePeriod reports is_in_grace_period.
func (s Status) IsInGracePeriod() bool { return s.sub.IsInGracePeriod }

// DaysRemaining reports days_remaining.
func (s Status) DaysRemaining() int { return s.sub.DaysRemaining }

// AccessLevel applies Active > GracePeriod > Expired > Pending > Unknown.
func (s Status) AccessLevel() AccessLevel {
	switch {
	case s.sub.HasActiveSubscription:
		return AccessActive
	case s.sub.IsInGracePeriod:
		return AccessGracePeriod
	}
	switch s.sub.SubscriptionStatus.Normalize() {
	case models.StatusExpired, models.StatusCancelled:
		return AccessExpired
	case models.StatusPending:
		return AccessPending
	default:
		return AccessUnknown
	}
}

// ExpiringSoon reports whether the subscription is active and ends within
// thresholdDays whole days (0 < days_remaining <= thresholdDays).
func (s Status) ExpiringSoon(thresholdDays int) bool {
	return s.sub.HasActiveSubscription &&
		s.sub.DaysRemaining > 0 &&
		s.sub.DaysRemaining <= thresholdDays
}

// HoursRemaining returns hours_remaining. Close to expiry, when the server
// sent zero hours but an end_date, the hours are derived from end_date.
func (s Status) HoursRemaining() int {
	if s.sub.HoursRemaining > 0 || s.sub.DaysRemaining > nearExpiryDays {
		return s.sub.HoursRemaining
	}
	if s.sub.EndDate == nil || s.sub.EndDate.IsZero() || s.asOf.IsZero() {
		return 0
	}
	left := s.sub.EndDate.Sub(s.asOf)
	if left <= 0 {
		return 0
	}
	hours := int(left/time.Hour) - s.sub.DaysRemaining*24
	if hours < 0 {
		return 0
	}
	if hours > 23 {
		return 23
	}
	return hours
}

// Label formats the time left for the subscription widget: "2d 10h" close
// to expiry, "10h" on the last day, "30d" otherwise. Inactive
// subscriptions have no label.
func (s Status) Label() string {
	if !s.sub.HasActiveSubscription {
		return ""
	}
	days := s.sub.DaysRemaining
	if days > nearExpiryDays {
		return fmt.Sprintf("%dd", days)
	}
	hours := s.HoursRemaining()
	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return "<1h"
	}
}

// StatusView is the JSON shape served to clients.
type StatusView struct {
	AccessLevel         AccessLevel               `json:"access_level"`
	HasActive           bool                      `json:"has_active_subscription"`
	SubscriptionStatus  models.SubscriptionStatus `json:"subscription_status"`
	DaysRemaining       int                       `json:"days_remaining"`
	HoursRemaining      int                       `json:"hours_remaining"`
	IsInGracePeriod     bool                      `json:"is_in_grace_period"`
	ExpiringSoon        bool                      `json:"expiring_soon"`
	Label               string                    `json:"label,omitempty"`
	EndDate             *models.Timestamp         `json:"end_date"`
	RequireSubscription bool                      `json:"require_subscription"`
	FetchedAt           time.Time                 `json:"fetched_at"`
}

// View renders the snapshot for clients.
func (s Status) View(expiringSoonDays int) StatusView {
	return StatusView{
		AccessLevel:         s.AccessLevel(),
		HasActive:           s.sub.HasActiveSubscription,
		SubscriptionStatus:  s.sub.SubscriptionStatus.Normalize(),
		DaysRemaining:       s.sub.DaysRemaining,
		HoursRemaining:      s.HoursRemaining(),
		IsInGracePeriod:     s.sub.IsInGracePeriod,
		ExpiringSoon:        s.ExpiringSoon(expiringSoonDays),
		Label:               s.Label(),
		EndDate:             s.sub.EndDate,
		RequireSubscription: s.sub.RequireSubscription,
		FetchedAt:           s.fetchedAt,
	}
}
