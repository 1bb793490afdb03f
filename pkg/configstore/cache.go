/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package configstore

import (
	"context"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched value is served before it is refreshed.
const DefaultTTL = 5 * time.Minute

type entry struct {
	value   []byte
	fetched time.Time
}

// Cache is a Getter that remembers values for a TTL.
//
// Concurrent misses on one key share a single fetch. When a refresh fails
// and a previous value exists, the previous value is served.
type Cache struct {
	inner Getter
	ttl   time.Duration
	clock clockwork.Clock

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

var _ Getter = (*Cache)(nil)

// NewCache wraps inner with a TTL cache. A non-positive ttl uses DefaultTTL.
func NewCache(inner Getter, ttl time.Duration) *Cache {
	return newCache(inner, ttl, clockwork.NewRealClock())
}

func newCache(inner Getter, ttl time.Duration, clock clockwork.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		inner:   inner,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Get returns the cached value of key, fetching it when absent or expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.clock.Since(e.fetched) < c.ttl {
		return e.value, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// The fetch is shared, so one caller's cancellation must not fail
		// the others.
		data, err := c.inner.Get(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{value: data, fetched: c.clock.Now()}
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		if ok {
			clog.WarnContext(ctx, "Refreshing config failed, serving stale value", "key", key, "age", c.clock.Since(e.fetched), "error", err)
			return e.value, nil
		}
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops key so the next Get fetches it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
