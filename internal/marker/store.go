// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

// Package marker stores the pending_subscription_check marker: a short-lived
// record {subscription_id, order_tracking_id, started_at} written when a
// purchase starts and cleared when the payment is confirmed.
//
// Backends:
//   - badger: local, persistent across restarts (default)
//   - redis: shared between gateway replicas
//   - memory: tests and single-process development only
//
// Markers expire on their own after the configured TTL so an abandoned
// purchase does not block the user forever.
package marker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/ugflix-gateway/internal/config"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// Name is the marker's logical name, kept from the browser storage key.
const Name = "pending_subscription_check"

// ErrNotFound is returned by Get when no live marker exists.
var ErrNotFound = errors.New("marker: not found")

// Store persists one marker per user key.
type Store interface {
	Put(ctx context.Context, userKey string, m models.PendingMarker) error
	Get(ctx context.Context, userKey string) (models.PendingMarker, error)
	Clear(ctx context.Context, userKey string) error
	Close() error
}

// BackendType selects a Store implementation.
type BackendType string

const (
	BackendBadger BackendType = "badger"
	BackendRedis  BackendType = "redis"
	BackendMemory BackendType = "memory"
)

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg *config.MarkerConfig) (Store, error) {
	switch BackendType(cfg.Backend) {
	case BackendBadger:
		opts := badger.DefaultOptions(cfg.Path)
		opts.Logger = nil
		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("open badger db for markers: %w", err)
		}
		return NewBadgerStore(db, cfg.KeyPrefix, cfg.TTL, true), nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.KeyPrefix, cfg.TTL), nil

	case BackendMemory:
		return NewMemoryStore(cfg.TTL, nil), nil

	default:
		return nil, fmt.Errorf("unknown marker backend %q", cfg.Backend)
	}
}
