// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package models

import (
	"time"
)

// APIResponse is the envelope for every gateway HTTP response.
//
//	{
//	  "status": "success",
//	  "data": {"state": "Granted", ...},
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z", "cached": true}
//	}
//
// Status is "success" or "error"; Error is set only for "error".
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing and whether the manifest came from cache.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is the error body of an APIResponse.
//
// Codes used by the gateway:
//   - VALIDATION_ERROR: bad path parameter or request body
//   - UNAUTHORIZED: missing or rejected bearer token
//   - NOT_FOUND: unknown payment watch or subscription
//   - RATE_LIMITED: inbound limit hit or backend cool-down active
//   - UPSTREAM_UNAVAILABLE: backend timeout, network failure, 5xx or open breaker
//   - UPSTREAM_MALFORMED: backend answered with an unexpected shape
//   - PURCHASE_PENDING: a purchase is already awaiting confirmation
//   - CONFLICT: a payment check is already running or the watch has settled
//   - UPSTREAM_REJECTED: the backend refused the request as invalid
//   - INTERNAL_ERROR: anything else
type APIError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
