// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package middleware provides the HTTP middleware shared by the gateway's
routes.

Key Components:

  - RequestID: X-Request-ID propagation plus request and correlation IDs in
    the logging context
  - PrometheusMetrics: request count, duration and in-flight gauge, labelled
    by chi route pattern so path parameters (tracking ids, conversation ids)
    do not explode label cardinality
  - Compression: gzip for clients that accept it; websocket upgrades pass
    through untouched

Usage with chi:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.Compression)
*/
package middleware
