// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package marker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// RedisStore keeps markers in Redis so every gateway replica sees them.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. Close closes the client.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Put replaces the user's marker with SET ... EX.
func (s *RedisStore) Put(ctx context.Context, userKey string, m models.PendingMarker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+userKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set marker: %w", err)
	}
	return nil
}

// Get returns ErrNotFound when the key is absent or expired.
func (s *RedisStore) Get(ctx context.Context, userKey string) (models.PendingMarker, error) {
	var m models.PendingMarker
	data, err := s.client.Get(ctx, s.prefix+userKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, fmt.Errorf("redis get marker: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode marker: %w", err)
	}
	return m, nil
}

// Clear deletes the key.
func (s *RedisStore) Clear(ctx context.Context, userKey string) error {
	if err := s.client.Del(ctx, s.prefix+userKey).Err(); err != nil {
		return fmt.Errorf("redis delete marker: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
