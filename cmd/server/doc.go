// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package main is the entry point for the UgFlix gateway.

The gateway sits between the UgFlix web client and the UgFlix backend. It
caches each user's manifest, decides access to protected content, confirms
payments by polling the backend, guards the purchase flow against duplicate
orders, and pushes status changes over a websocket stream.

# Process Tree

	ugflix-gateway (root)
	├── data-layer
	│   └── session-registry (idle and token-expiry janitor)
	├── messaging-layer
	│   └── websocket-hub
	└── api-layer
	    └── api-server

Initialization order:

 1. Configuration: koanf (defaults, config.yaml, environment)
 2. Logging: zerolog, bridged to slog for the supervisor
 3. Marker store: badger, redis or memory
 4. Events: NATS publisher for payment outcomes, or a no-op
 5. Backend client: circuit breaker, pacing and 429 cool-down
 6. WebSocket hub and session registry
 7. Chi router and HTTP server
 8. Supervisor tree

# Configuration

Common environment variables:

	UGFLIX_API_URL     backend base URL (required)
	HTTP_PORT          listen port (default 8080)
	CORS_ORIGINS       comma-separated browser origins
	MARKER_BACKEND     badger | redis | memory
	EVENTS_ENABLED     publish payment outcomes to NATS
	NATS_URL           NATS server URL
	LOG_LEVEL          trace | debug | info | warn | error
	CONFIG_PATH        explicit config file

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains within
server.shutdown_timeout, the hub closes every stream, and the registry
closes every session engine before the stores are closed.
*/
package main
