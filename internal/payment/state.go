// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package payment

import (
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// State is the verification state of a watch.
type State string

const (
	StateChecking  State = "checking"
	StateVerifying State = "verifying"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
	StatePending   State = "pending"
	StateError     State = "error"
)

// Terminal reports whether no automatic check follows s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateError
}

type transition struct {
	from State
	to   State
}

var validTransitions = map[transition]bool{
	{StateChecking, StateVerifying}: true, // first check
	{StateVerifying, StateSuccess}:  true,
	{StateVerifying, StateFailed}:   true,
	{StateVerifying, StatePending}:  true,
	{StateVerifying, StateError}:    true,
	{StatePending, StateVerifying}:  true, // auto-check or check now
	{StateError, StateVerifying}:    true, // check now
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return validTransitions[transition{from, to}]
}

// Classify maps a payment-status response onto the state it settles in.
// Anything that is neither confirmed nor an authoritative failure is
// Pending, so an unrecognised combination never grants access.
func Classify(data *models.PaymentStatusData) State {
	if data == nil || data.Subscription == nil {
		return StatePending
	}
	payment := data.Subscription.PaymentStatus.Normalize()
	status := data.Subscription.Status.Normalize()
	switch {
	case payment == models.PaymentCompleted && status == models.StatusActive:
		return StateSuccess
	case payment == models.PaymentFailed || status == models.StatusFailed:
		return StateFailed
	case payment == models.PaymentReversed || payment == models.PaymentInvalid:
		return StateFailed
	default:
		return StatePending
	}
}
