// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package validation

import (
	"strings"
	"testing"
)

type testSubscription struct {
	Status        string `json:"subscription_status" validate:"required,oneof=Active Expired Cancelled Pending Failed Unknown"`
	DaysRemaining int    `json:"days_remaining" validate:"gte=0"`
}

type testEnvelope struct {
	Subscription *testSubscription `json:"subscription" validate:"required"`
	Note         string            `json:"note" validate:"max=5"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	t.Parallel()

	in := testEnvelope{Subscription: &testSubscription{Status: "Active", DaysRemaining: 2}}
	if err := ValidateStruct(&in); err != nil {
		t.Errorf("ValidateStruct() unexpected error: %v", err)
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     testEnvelope
		wantField string
		wantTag   string
	}{
		{"missing subscription", testEnvelope{}, "subscription", "required"},
		{"unknown status", testEnvelope{Subscription: &testSubscription{Status: "Gold"}}, "subscription.subscription_status", "oneof"},
		{"negative days", testEnvelope{Subscription: &testSubscription{Status: "Active", DaysRemaining: -1}}, "subscription.days_remaining", "gte"},
		{"long note", testEnvelope{Subscription: &testSubscription{Status: "Active"}, Note: "too long"}, "note", "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			got := err.Errors()[0]
			if got.Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", got.Field(), tt.wantField)
			}
			if got.Tag() != tt.wantTag {
				t.Errorf("Tag() = %q, want %q", got.Tag(), tt.wantTag)
			}
		})
	}
}

func TestValidateVar_TrackingID(t *testing.T) {
	t.Parallel()

	valid := []string{"b1c3-55aa", "ORDER_123", "42"}
	for _, id := range valid {
		if err := ValidateVar("trackingID", id, "required,tracking_id"); err != nil {
			t.Errorf("ValidateVar(%q) unexpected error: %v", id, err)
		}
	}

	invalid := []string{"", "../etc/passwd", "a b", strings.Repeat("x", 129)}
	for _, id := range invalid {
		err := ValidateVar("trackingID", id, "required,tracking_id")
		if err == nil {
			t.Errorf("ValidateVar(%q) expected error", id)
			continue
		}
		if err.Errors()[0].Field() != "trackingID" {
			t.Errorf("field = %q, want trackingID", err.Errors()[0].Field())
		}
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	single := ValidateStruct(&testEnvelope{})
	apiErr := single.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Message != "subscription is required" {
		t.Errorf("Message = %q", apiErr.Message)
	}

	multi := ValidateStruct(&testEnvelope{Subscription: &testSubscription{DaysRemaining: -3}, Note: "toolong"})
	apiErr = multi.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 3 {
		t.Fatalf("expected 3 field details, got %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "days_remaining") {
		t.Errorf("Message = %q, want days_remaining mentioned", apiErr.Message)
	}
}
