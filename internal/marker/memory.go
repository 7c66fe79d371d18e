// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package marker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/cache"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// memoryCapacity bounds the in-memory store.
const memoryCapacity = 100000

// MemoryStore keeps markers in process memory. Markers are lost on restart.
type MemoryStore struct {
	clock   clockwork.Clock
	ttl     time.Duration
	markers *cache.LRU[string, models.PendingMarker]
}

// NewMemoryStore creates a store whose markers expire after ttl. A nil
// clock uses the real clock.
func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:   clock,
		ttl:     ttl,
		markers: cache.NewLRU[string, models.PendingMarker](memoryCapacity, ttl, clock, nil),
	}
}

// Put replaces the user's marker.
func (s *MemoryStore) Put(_ context.Context, userKey string, m models.PendingMarker) error {
	if s.ttl > 0 {
		s.markers.AddWithDeadline(userKey, m, s.clock.Now().Add(s.ttl))
		return nil
	}
	s.markers.Add(userKey, m)
	return nil
}

// Get returns ErrNotFound when absent or expired.
func (s *MemoryStore) Get(_ context.Context, userKey string) (models.PendingMarker, error) {
	m, ok := s.markers.Get(userKey)
	if !ok {
		return models.PendingMarker{}, ErrNotFound
	}
	return m, nil
}

// Clear removes the user's marker.
func (s *MemoryStore) Clear(_ context.Context, userKey string) error {
	s.markers.Remove(userKey)
	return nil
}

// Close drops every marker.
func (s *MemoryStore) Close() error {
	s.markers.Clear()
	return nil
}
