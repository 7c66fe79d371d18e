// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

// Package cache provides the two caching primitives the gateway needs:
//
//   - Loader: a TTL cache of a single value with single-flight fetching,
//     used for the per-session manifest.
//   - LRU: a capacity and idle-TTL bounded map with eviction callbacks,
//     used for the session registry and chat de-duplication.
//
// Both take a clockwork.Clock so tests can move time without sleeping.
package cache
