// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package payment

import (
	"testing"

	"github.com/tomtom215/ugflix-gateway/internal/models"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		payment models.PaymentStatus
		status  models.SubscriptionStatus
		want    State
	}{
		{models.PaymentCompleted, models.StatusActive, StateSuccess},
		{"completed", "active", StateSuccess},
		{models.PaymentCompleted, models.StatusPending, StatePending},
		{models.PaymentFailed, models.StatusFailed, StateFailed},
		{models.PaymentFailed, models.StatusPending, StateFailed},
		{models.PaymentPending, models.StatusFailed, StateFailed},
		{models.PaymentReversed, models.StatusPending, StateFailed},
		{models.PaymentInvalid, models.StatusPending, StateFailed},
		{models.PaymentProcessing, models.StatusPending, StatePending},
		{models.PaymentPending, models.StatusPending, StatePending},
		{"Chargeback", models.StatusActive, StatePending},
	}
	for _, tt := range tests {
		data := &models.PaymentStatusData{Subscription: &models.Subscription{PaymentStatus: tt.payment, Status: tt.status}}
		if got := Classify(data); got != tt.want {
			t.Errorf("Classify(%s/%s) = %q, want %q", tt.payment, tt.status, got, tt.want)
		}
	}

	if got := Classify(nil); got != StatePending {
		t.Errorf("Classify(nil) = %q, want pending", got)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := [][2]State{
		{StateChecking, StateVerifying},
		{StateVerifying, StateSuccess},
		{StateVerifying, StateFailed},
		{StateVerifying, StatePending},
		{StateVerifying, StateError},
		{StatePending, StateVerifying},
		{StateError, StateVerifying},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]State{
		{StateSuccess, StateVerifying},
		{StateFailed, StateVerifying},
		{StateChecking, StateSuccess},
		{StatePending, StateSuccess},
		{StateSuccess, StateFailed},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []State{StateSuccess, StateFailed, StateError} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateChecking, StateVerifying, StatePending} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
