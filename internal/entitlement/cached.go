// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package entitlement

import (
	"context"
	"time"

	"github.com/ManuGH/cinevault/internal/cache"
)

// Cached remembers positive decisions for ttl. Denials and errors always go
// to the inner checker, so a fresh purchase is visible immediately and an
// outage can never be cached as a grant.
type Cached struct {
	inner Checker
	store cache.Cache
	ttl   time.Duration
}

func NewCached(inner Checker, store cache.Cache, ttl time.Duration) Checker {
	if store == nil || ttl <= 0 {
		return inner
	}
	return &Cached{inner: inner, store: store, ttl: ttl}
}

func cacheKey(viewerID, assetID string) string {
	return viewerID + "|" + assetID
}

func (c *Cached) Entitled(ctx context.Context, viewerID, assetID string) (bool, error) {
	key := cacheKey(viewerID, assetID)
	if v, ok := c.store.Get(ctx, key); ok {
		if granted, _ := v.(bool); granted {
			return true, nil
		}
	}
	ok, err := c.inner.Entitled(ctx, viewerID, assetID)
	if err != nil || !ok {
		return false, err
	}
	c.store.Set(ctx, key, true, c.ttl)
	return true, nil
}
