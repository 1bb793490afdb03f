/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package configstore resolves builder names against builder tables kept in
// a key/value store.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/chainguard-dev/build-status-reporter/pkg/buildstatus"
)

const (
	// BuildersKey holds the post-submit builder table.
	BuildersKey = "builders.json"

	// TryBuildersKey holds the pre-submit builder table.
	TryBuildersKey = "try_builders.json"
)

// ErrInvalidConfig is returned when a builder table cannot be decoded.
var ErrInvalidConfig = errors.New("invalid builder config")

// Store implements buildstatus.ConfigLookup over a Getter.
type Store struct {
	getter Getter
}

var _ buildstatus.ConfigLookup = (*Store)(nil)

// NewStore creates a Store. getter is usually a *Cache.
func NewStore(getter Getter) *Store {
	return &Store{getter: getter}
}

// table decodes the table under key. A missing key is an empty table.
func (s *Store) table(ctx context.Context, key string) (map[string]buildstatus.BuilderConfig, error) {
	data, err := s.getter.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return map[string]buildstatus.BuilderConfig{}, nil
	} else if err != nil {
		return nil, err
	}
	var t map[string]buildstatus.BuilderConfig
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	if t == nil {
		t = map[string]buildstatus.BuilderConfig{}
	}
	return t, nil
}

// FindBuilderConfig looks name up in the post-submit table, then the
// pre-submit table.
func (s *Store) FindBuilderConfig(ctx context.Context, name string) (*buildstatus.BuilderConfig, error) {
	for _, key := range []string{BuildersKey, TryBuildersKey} {
		t, err := s.table(ctx, key)
		if err != nil {
			return nil, err
		}
		if cfg, ok := t[name]; ok {
			return &cfg, nil
		}
	}
	return nil, nil
}

// WatchedBuilders returns the pre-submit table.
func (s *Store) WatchedBuilders(ctx context.Context) (map[string]buildstatus.BuilderConfig, error) {
	return s.table(ctx, TryBuildersKey)
}

// Tables is a fixed, in-memory buildstatus.ConfigLookup.
type Tables struct {
	Prod map[string]buildstatus.BuilderConfig
	Try  map[string]buildstatus.BuilderConfig
}

var _ buildstatus.ConfigLookup = Tables{}

// FindBuilderConfig implements buildstatus.ConfigLookup.
func (t Tables) FindBuilderConfig(_ context.Context, name string) (*buildstatus.BuilderConfig, error) {
	if cfg, ok := t.Prod[name]; ok {
		return &cfg, nil
	}
	if cfg, ok := t.Try[name]; ok {
		return &cfg, nil
	}
	return nil, nil
}

// WatchedBuilders implements buildstatus.ConfigLookup.
func (t Tables) WatchedBuilders(context.Context) (map[string]buildstatus.BuilderConfig, error) {
	return maps.Clone(t.Try), nil
}
