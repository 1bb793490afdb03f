/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildstatus

import "context"

// StatusClient lists and creates commit statuses on the source host.
type StatusClient interface {
	// ListStatuses returns the statuses recorded for ref. Implementations that
	// know the host's ordering should return newest first; the Reconciler
	// orders by CreatedAt regardless.
	ListStatuses(ctx context.Context, repo RepoSlug, ref string) ([]CommitStatus, error)

	// CreateStatus appends a status to ref.
	CreateStatus(ctx context.Context, repo RepoSlug, ref string, status CommitStatus) (*CommitStatus, error)
}

// BuildSearcher queries the build system.
type BuildSearcher interface {
	// SearchBuilds returns every build in bucket carrying all of the given
	// tags. The result may be empty.
	SearchBuilds(ctx context.Context, bucket string, tags []Tag) ([]BuildIdentity, error)
}

// Tag is a key/value build tag.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ConfigLookup resolves builder names against the configured builder tables.
type ConfigLookup interface {
	// FindBuilderConfig looks name up in the prod and try builder tables.
	// It returns nil when the builder is not configured.
	FindBuilderConfig(ctx context.Context, name string) (*BuilderConfig, error)

	// WatchedBuilders returns the try builder table.
	WatchedBuilders(ctx context.Context) (map[string]BuilderConfig, error)
}
