// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestRecordBackendRequest(t *testing.T) {
	before := testutil.ToFloat64(BackendRequests.WithLabelValues("manifest", "timeout"))
	RecordBackendRequest("manifest", "timeout", 15*time.Second)
	after := testutil.ToFloat64(BackendRequests.WithLabelValues("manifest", "timeout"))

	if after-before != 1 {
		t.Errorf("backend requests delta = %v, want 1", after-before)
	}
}

func TestRecordBackendRequest_ObservesDuration(t *testing.T) {
	count := func() uint64 {
		m := &io_prometheus_client.Metric{}
		observer := BackendRequestDuration.WithLabelValues("payment_status")
		if err := observer.(prometheus.Metric).Write(m); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		return m.GetHistogram().GetSampleCount()
	}

	before := count()
	RecordBackendRequest("payment_status", "ok", 120*time.Millisecond)
	if got := count() - before; got != 1 {
		t.Errorf("histogram sample delta = %d, want 1", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheHits.WithLabelValues("manifest"))
	misses := testutil.ToFloat64(CacheMisses.WithLabelValues("manifest"))

	RecordCacheLookup("manifest", true)
	RecordCacheLookup("manifest", true)
	RecordCacheLookup("manifest", false)

	if got := testutil.ToFloat64(CacheHits.WithLabelValues("manifest")) - hits; got != 2 {
		t.Errorf("hits delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("manifest")) - misses; got != 1 {
		t.Errorf("misses delta = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/access", "200"))
	RecordAPIRequest("GET", "/api/v1/access", 200, 20*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/access", "200")) - before; got != 1 {
		t.Errorf("api requests delta = %v, want 1", got)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active = %v, want %v", got, before)
	}
}

func TestRecordTransitionsAndDecisions(t *testing.T) {
	RecordPaymentTransition("Verifying", "Success")
	RecordGuardDecision("Denied", "grace_period")
	RecordPreCheck("plans", "pending")

	if testutil.ToFloat64(PaymentTransitions.WithLabelValues("Verifying", "Success")) < 1 {
		t.Error("payment transition not recorded")
	}
	if testutil.ToFloat64(GuardDecisions.WithLabelValues("Denied", "grace_period")) < 1 {
		t.Error("guard decision not recorded")
	}
	if testutil.ToFloat64(PreCheckOutcomes.WithLabelValues("plans", "pending")) < 1 {
		t.Error("pre-check outcome not recorded")
	}
}
