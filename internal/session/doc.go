// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package session keeps one Engine per signed-in user.

An Engine is keyed by a truncated SHA-256 of the bearer token and owns that
user's backend client, manifest cache, status resolver, access guard,
pending pre-check, subscription widget, payment watches and chat pollers.
Nothing is shared between users except the backend transport, the marker
store and the event publisher.

# Lifetime

Engines live in a capped LRU. An engine is closed when:

  - it has not been used for session.idle_timeout
  - the token's exp claim passes (read without verification)
  - the LRU is full and it is the least recently used
  - the client releases it, or the registry closes

Closing an engine stops every loop it owns and waits for them to exit.
The janitor (Registry.Serve) sweeps expired engines every
session.janitor_interval and runs under the supervisor tree.
*/
package session
