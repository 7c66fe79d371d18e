// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/ugflix-gateway/internal/middleware"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// Router builds the chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil middleware config is built from the
// handler's security section.
func NewRouter(handler *Handler, mwConfig *ChiMiddlewareConfig) *Router {
	if mwConfig == nil {
		mwConfig = ChiMiddlewareConfigFrom(&handler.cfg.Security)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// SetupChi returns the complete HTTP handler.
//
// Global middleware order: request id, real IP, panic recovery, CORS.
// Route groups add rate limiting, security headers, metrics and the
// session lookup.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	mw := router.chiMiddleware

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusNotFound, errorResponse(&models.APIError{Code: codeNotFound, Message: "Route not found"}))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse(&models.APIError{Code: codeValidation, Message: "Method not allowed"}))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitHealth())
			r.Use(middleware.PrometheusMetrics)
			r.Get("/health/live", h.HealthLive)
			r.Get("/health/ready", h.HealthReady)
		})

		// The websocket route skips compression and security headers; the
		// upgrade hijacks the connection.
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit("ws"))
			r.Use(middleware.PrometheusMetrics)
			r.Use(h.Authenticate)
			r.Get("/ws", h.WebSocket)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit("api"))
			r.Use(APISecurityHeaders)
			r.Use(middleware.PrometheusMetrics)
			r.Use(middleware.Compression)
			r.Use(h.Authenticate)

			r.Get("/manifest", h.Manifest)
			r.Get("/subscription/status", h.SubscriptionStatus)
			r.Post("/subscription/refresh", h.SubscriptionRefresh)
			r.Get("/subscription/pending", h.PendingMarker)
			r.Get("/access", h.Access)
			r.Get("/plans", h.Plans)
			r.Post("/subscriptions", h.Purchase)

			r.Route("/payments/{trackingID}", func(r chi.Router) {
				r.Get("/", h.GetPayment)
				r.Delete("/", h.StopPayment)
				r.Post("/watch", h.WatchPayment)
				r.Post("/check", h.CheckPayment)
				r.Post("/retry", h.RetryPayment)
			})

			r.Route("/chats/{conversationID}", func(r chi.Router) {
				r.Delete("/", h.StopChat)
				r.Get("/messages", h.ChatMessages)
				r.Post("/messages", h.SendChatMessage)
				r.Post("/messages/{localID}/resend", h.ResendChatMessage)
			})
		})
	})

	return r
}
