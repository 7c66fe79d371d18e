// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/session"
)

type contextKey int

const engineKey contextKey = iota

// bearerToken extracts the token from an Authorization header. The
// websocket route also accepts an access_token query parameter because
// browsers cannot set headers on an upgrade request.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Authenticate resolves the caller's session engine from the bearer token.
// The token is not verified here; the backend rejects bad tokens and that
// rejection surfaces as 401 on the first proxied call.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && r.URL.Path == h.wsPath {
			token = r.URL.Query().Get("access_token")
		}

		e, err := h.registry.Acquire(r.Context(), token)
		if err != nil {
			respondFailure(w, r, err)
			return
		}

		ctx := logging.ContextWithSession(r.Context(), e.Key())
		ctx = context.WithValue(ctx, engineKey, e)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// engineFrom returns the engine Authenticate attached to ctx.
func engineFrom(ctx context.Context) *session.Engine {
	e, _ := ctx.Value(engineKey).(*session.Engine)
	return e
}
