/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildstatus

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Dispatcher marks every watched build of a pull request as pending.
type Dispatcher struct {
	reconciler *Reconciler
	builds     BuildSearcher
	lookup     ConfigLookup
	opts       Options
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(r *Reconciler, builds BuildSearcher, lookup ConfigLookup, opts Options) *Dispatcher {
	return &Dispatcher{
		reconciler: r,
		builds:     builds,
		lookup:     lookup,
		opts:       opts.withDefaults(),
	}
}

// BuildSetTags returns the tags identifying the builds of a pull request at a
// commit.
func BuildSetTags(pr int, sha string) []Tag {
	return []Tag{
		{Key: "buildset", Value: fmt.Sprintf("pr/git/%d", pr)},
		{Key: "buildset", Value: "sha/git/" + sha},
	}
}

// SetBuildsPendingStatus searches for the builds of pull request pr at commit
// sha and posts a pending status for each build whose builder is watched.
// Builds of unwatched builders are skipped. When the search finds nothing, the
// status client is not called.
func (d *Dispatcher) SetBuildsPendingStatus(ctx context.Context, pr int, sha string, repo RepoSlug) error {
	log := clog.FromContext(ctx).With("repo", repo.String(), "pr", pr, "sha", sha)

	builds, err := d.builds.SearchBuilds(ctx, d.opts.TryBucket, BuildSetTags(pr, sha))
	if err != nil {
		return fmt.Errorf("searching builds for %s#%d: %w", repo, pr, err)
	}
	if len(builds) == 0 {
		log.Debug("No builds found")
		return nil
	}

	watched, err := d.lookup.WatchedBuilders(ctx)
	if err != nil {
		return fmt.Errorf("loading watched builders: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.opts.Parallelism)
	for _, b := range builds {
		if _, ok := watched[b.Builder]; !ok {
			log.With("builder", b.Builder).Debug("Skipping unwatched builder")
			mSkips.WithLabelValues("unwatched").Inc()
			continue
		}
		eg.Go(func() error {
			_, err := d.reconciler.SetPendingStatus(egCtx, sha, b.Builder, d.opts.BuildURL(b), repo)
			return err
		})
	}
	return eg.Wait()
}
