// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package subscription

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/cache"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// ManifestFetcher is the backend call behind the cache.
type ManifestFetcher interface {
	GetManifest(ctx context.Context) (*models.ManifestData, error)
}

// ManifestCache caches GET manifest for one session.
//
// Returned values are shared between callers and must be treated as
// read-only.
type ManifestCache struct {
	loader *cache.Loader[*models.ManifestData]
}

// NewManifestCache creates a cache with the given TTL and clock.
func NewManifestCache(src ManifestFetcher, ttl time.Duration, clock clockwork.Clock) *ManifestCache {
	return &ManifestCache{
		loader: cache.NewLoader("manifest", ttl, clock, func(ctx context.Context) (*models.ManifestData, error) {
			return src.GetManifest(ctx)
		}),
	}
}

// Get returns the cached manifest while it is younger than the TTL, and
// otherwise fetches it once for all concurrent callers. Errors are returned
// as the backend produced them and are never cached.
func (c *ManifestCache) Get(ctx context.Context, forceRefresh bool) (*models.ManifestData, error) {
	entry, _, err := c.loader.GetEntry(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// GetEntry is Get plus the fetch time.
func (c *ManifestCache) GetEntry(ctx context.Context, forceRefresh bool) (cache.Entry[*models.ManifestData], error) {
	entry, _, err := c.loader.GetEntry(ctx, forceRefresh)
	return entry, err
}

// Invalidate drops the cached manifest. The next Get always fetches.
func (c *ManifestCache) Invalidate() {
	c.loader.Invalidate()
}

// Peek returns the cached entry without fetching, even if stale.
func (c *ManifestCache) Peek() (cache.Entry[*models.ManifestData], bool) {
	return c.loader.Peek()
}
