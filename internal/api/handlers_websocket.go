// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"net/http"

	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/session"
	ws "github.com/tomtom215/ugflix-gateway/internal/websocket"
)

// WebSocket upgrades to the user's push stream. The subscription widget
// runs while at least one stream is open and stops with the last one.
//
// @Summary Open the push stream
// @Tags Stream
// @Param access_token query string false "Bearer token when no Authorization header can be sent"
// @Success 101
// @Failure 401 {object} models.APIResponse
// @Router /ws [get]
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	e := engineFrom(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	if err := e.StartWidget(); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Subscription widget not started")
	}

	key := e.Key()
	client := ws.NewClient(h.hub, conn, key, func() {
		if h.hub.UserClientCount(key) == 0 {
			e.Widget().Stop()
		}
	})
	// Stream activity keeps the session alive; eviction closes the stream.
	client.OnActivity(func() { h.registry.Touch(key) })
	client.Start()

	// A new stream starts from the latest known status.
	if u, ok := e.Widget().Last(); ok {
		h.hub.Notify(key, session.KindSubscription, u)
	}
	logging.Ctx(r.Context()).Debug().Uint64("client_id", client.ID()).Msg("WebSocket client connected")
}
