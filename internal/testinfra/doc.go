// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

// Package testinfra provides shared test infrastructure.
//
// # Fake Backend
//
// FakeBackend is an httptest server that speaks the UgFlix envelope. Routes are
// programmed with a queue of responses; the last response repeats once the
// queue drains. Every request is captured for assertions:
//
//	fb := testinfra.NewFakeBackend(t)
//	fb.On(http.MethodGet, "manifest", testinfra.OK(manifest))
//	fb.On(http.MethodGet, "subscriptions/pending",
//	    testinfra.Status(http.StatusServiceUnavailable),
//	    testinfra.OK(models.PendingCheck{}),
//	)
//	client, _ := backend.New(fb.Config())
//
// # Containers
//
// Container helpers use testcontainers-go and are compiled only with the
// integration build tag:
//
//	go test -tags integration ./internal/marker/...
//
// Tests skip when no Docker daemon is reachable.
package testinfra
