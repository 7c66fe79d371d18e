// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package api exposes the gateway's HTTP surface.

Every route under /api/v1 except the health probes requires a bearer token.
The token is forwarded to the backend unchanged and also selects the
caller's session engine, which owns that user's manifest cache, access
guard, payment watches and chat pollers.

# Routes

	GET    /api/v1/manifest                       cached manifest (?refresh=true forces a fetch)
	GET    /api/v1/subscription/status            resolved subscription status
	POST   /api/v1/subscription/refresh           drop the cache and re-resolve
	GET    /api/v1/access                         access guard decision (?retry=true re-evaluates)
	GET    /api/v1/plans                          pending pre-check, then plans
	POST   /api/v1/subscriptions                  start a purchase
	POST   /api/v1/payments/{trackingID}/watch    start or reuse a payment watch
	GET    /api/v1/payments/{trackingID}          current watch snapshot
	POST   /api/v1/payments/{trackingID}/check    manual "check now"
	POST   /api/v1/payments/{trackingID}/retry    retry a failed payment
	DELETE /api/v1/payments/{trackingID}          stop watching
	GET    /api/v1/chats/{conversationID}/messages
	POST   /api/v1/chats/{conversationID}/messages
	DELETE /api/v1/chats/{conversationID}
	GET    /api/v1/ws                             per-user push stream
	GET    /api/v1/health/live
	GET    /api/v1/health/ready
	GET    /metrics

# Responses

All JSON bodies use models.APIResponse. Backend failures are mapped to a
stable error code by their backend.Kind; see respondBackendError.
*/
package api
