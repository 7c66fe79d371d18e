// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/config"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/marker"
	"github.com/tomtom215/ugflix-gateway/internal/session"
	ws "github.com/tomtom215/ugflix-gateway/internal/websocket"
)

// Handler serves the gateway routes.
type Handler struct {
	cfg       *config.Config
	registry  *session.Registry
	hub       *ws.Hub
	backend   *backend.Client
	markers   marker.Store
	startTime time.Time
	wsPath    string
	upgrader  websocket.Upgrader
}

// NewHandler wires the handler to its collaborators. markers may be nil.
func NewHandler(cfg *config.Config, registry *session.Registry, hub *ws.Hub, client *backend.Client, markers marker.Store) *Handler {
	h := &Handler{
		cfg:       cfg,
		registry:  registry,
		hub:       hub,
		backend:   client,
		markers:   markers,
		startTime: time.Now(),
		wsPath:    "/api/v1/ws",
	}
	h.upgrader = h.getUpgrader()
	return h
}

// getUpgrader returns a websocket upgrader that checks the Origin header
// against the configured CORS origins.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				logging.Warn().Str("remote_addr", r.RemoteAddr).Msg("WebSocket connection rejected: missing Origin header")
				return false
			}
			for _, allowed := range h.cfg.Security.CORSOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected: origin not allowed")
			return false
		},
	}
}
