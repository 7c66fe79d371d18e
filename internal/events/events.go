// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

// Package events publishes payment outcomes for other services.
//
// Events are JSON on "<prefix>.<state>", for example
// "ugflix.payments.success". Publishing is fire-and-forget: a failed
// publish is logged and counted but never changes the outcome a user sees.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ugflix-gateway/internal/config"
)

// SchemaVersion is bumped on breaking changes to PaymentEvent.
const SchemaVersion = 1

// DefaultSubjectPrefix is used when the config leaves it empty.
const DefaultSubjectPrefix = "ugflix.payments"

// PaymentEvent is a terminal payment outcome.
type PaymentEvent struct {
	SchemaVersion  int       `json:"schema_version"`
	EventID        string    `json:"event_id"`
	State          string    `json:"state"`
	UserKey        string    `json:"user_key"`
	TrackingID     string    `json:"order_tracking_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	PaymentStatus  string    `json:"payment_status,omitempty"`
	Status         string    `json:"status,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewPaymentEvent fills the identification fields.
func NewPaymentEvent(state, userKey, trackingID string, at time.Time) PaymentEvent {
	return PaymentEvent{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.NewString(),
		State:         state,
		UserKey:       userKey,
		TrackingID:    trackingID,
		Timestamp:     at.UTC(),
	}
}

// Publisher sends payment events.
type Publisher interface {
	PublishPayment(ctx context.Context, event PaymentEvent) error
	Close() error
}

// Subject returns the subject an event with state is published on.
func Subject(prefix, state string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + strings.ToLower(state)
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) PublishPayment(context.Context, PaymentEvent) error { return nil }
func (NoopPublisher) Close() error                                      { return nil }

// Open returns a NATS publisher when events are enabled and a no-op
// publisher otherwise.
func Open(cfg *config.EventsConfig) (Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(cfg.URL, cfg.SubjectPrefix)
}
