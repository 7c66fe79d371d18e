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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// BadgerStore keeps markers in BadgerDB with a native per-key TTL.
type BadgerStore struct {
	db     *badger.DB
	prefix string
	ttl    time.Duration
	ownsDB bool
}

// NewBadgerStore wraps db. When ownsDB is set Close also closes db.
func NewBadgerStore(db *badger.DB, prefix string, ttl time.Duration, ownsDB bool) *BadgerStore {
	return &BadgerStore{db: db, prefix: prefix, ttl: ttl, ownsDB: ownsDB}
}

func (s *BadgerStore) key(userKey string) []byte {
	return []byte(s.prefix + userKey)
}

// Put replaces the user's marker.
func (s *BadgerStore) Put(_ context.Context, userKey string, m models.PendingMarker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(s.key(userKey), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set marker: %w", err)
		}
		return nil
	})
}

// Get returns ErrNotFound when the marker is absent or expired.
func (s *BadgerStore) Get(_ context.Context, userKey string) (models.PendingMarker, error) {
	var m models.PendingMarker
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(userKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get marker: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	return m, err
}

// Clear is a no-op when no marker exists.
func (s *BadgerStore) Clear(_ context.Context, userKey string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(s.key(userKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete marker: %w", err)
		}
		return nil
	})
}

// Close closes the database if the store owns it.
func (s *BadgerStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
