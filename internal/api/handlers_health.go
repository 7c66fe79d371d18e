// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/ugflix-gateway/internal/marker"
)

// readyProbeKey is looked up in the marker store to prove it answers.
const readyProbeKey = "__readiness_probe__"

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status         string            `json:"status"`
	Uptime         string            `json:"uptime"`
	Sessions       int               `json:"sessions"`
	WSClients      int               `json:"ws_clients"`
	BackendCircuit string            `json:"backend_circuit"`
	Checks         map[string]string `json:"checks,omitempty"`
}

// HealthLive reports that the process is serving requests.
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} models.APIResponse{data=HealthStatus}
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondData(w, http.StatusOK, HealthStatus{
		Status: "alive",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	}, start, false)
}

// HealthReady reports whether the gateway can serve users: the session
// registry is open, the backend breaker is not open and the marker store
// answers.
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} models.APIResponse{data=HealthStatus}
// @Failure 503 {object} models.APIResponse{data=HealthStatus}
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	checks := map[string]string{}
	ready := true

	if h.registry.Closed() {
		checks["sessions"] = "closed"
		ready = false
	} else {
		checks["sessions"] = "ok"
	}

	breaker := h.backend.BreakerState()
	checks["backend"] = breaker
	if breaker == "open" {
		ready = false
	}

	if h.markers != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		_, err := h.markers.Get(ctx, readyProbeKey)
		cancel()
		if err != nil && !errors.Is(err, marker.ErrNotFound) {
			checks["markers"] = "error"
			ready = false
		} else {
			checks["markers"] = "ok"
		}
	}

	body := HealthStatus{
		Status:         "ready",
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		Sessions:       h.registry.Len(),
		WSClients:      h.hub.GetClientCount(),
		BackendCircuit: breaker,
		Checks:         checks,
	}
	status := http.StatusOK
	if !ready {
		body.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	respondData(w, status, body, start, false)
}
