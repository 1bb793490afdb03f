/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildstatus

import (
	"context"
	"fmt"
	"sort"

	"github.com/chainguard-dev/clog"
)

// Reconciler writes commit statuses for builders, skipping writes that would
// not change the current status.
type Reconciler struct {
	client StatusClient
	lookup ConfigLookup
	opts   Options
}

// NewReconciler creates a Reconciler.
func NewReconciler(client StatusClient, lookup ConfigLookup, opts Options) *Reconciler {
	return &Reconciler{
		client: client,
		lookup: lookup,
		opts:   opts.withDefaults(),
	}
}

// BuildURL returns the console URL of b.
func (r *Reconciler) BuildURL(b BuildIdentity) string {
	return r.opts.BuildURL(b)
}

// SetPendingStatus posts a pending status for builder on ref unless the most
// recent status for the builder is already pending at the same URL. It
// returns whether a status was posted.
//
// Builders that are not configured for repo are skipped silently.
func (r *Reconciler) SetPendingStatus(ctx context.Context, ref, builder, buildURL string, repo RepoSlug) (bool, error) {
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With(
		"repo", repo.String(),
		"ref", ref,
		"builder", builder,
	))

	d, err := r.DecidePending(ctx, ref, builder, buildURL, repo)
	if err != nil {
		return false, err
	}
	if !d.ShouldPost {
		clog.FromContext(ctx).With("reason", d.Reason).Debug("Skipping pending status")
		mSkips.WithLabelValues(d.Reason).Inc()
		return false, nil
	}

	if err := r.post(ctx, repo, ref, CommitStatus{
		Context:     builder,
		State:       StatePending,
		TargetURL:   r.opts.PendingURL(buildURL),
		Description: r.opts.Description(builder),
	}); err != nil {
		return false, err
	}
	return true, nil
}

// DecidePending computes whether SetPendingStatus would post, without posting.
func (r *Reconciler) DecidePending(ctx context.Context, ref, builder, buildURL string, repo RepoSlug) (Decision, error) {
	known, err := r.builderExists(ctx, builder, repo)
	if err != nil {
		return Decision{}, err
	}
	if !known {
		return Decision{Reason: ReasonUnknownBuilder}, nil
	}

	statuses, err := r.client.ListStatuses(ctx, repo, ref)
	if err != nil {
		return Decision{}, fmt.Errorf("listing statuses for %s@%s: %w", repo, ref, err)
	}

	latest := mostRecent(statuses, builder)
	switch {
	case latest == nil:
		return Decision{ShouldPost: true, Reason: ReasonNoStatus}, nil
	case latest.State != StatePending:
		return Decision{ShouldPost: true, Reason: ReasonStateChanged}, nil
	case !r.opts.sameURL(latest.TargetURL, buildURL):
		return Decision{ShouldPost: true, Reason: ReasonURLChanged}, nil
	default:
		return Decision{Reason: ReasonUnchanged}, nil
	}
}

// SetCompletedStatus posts the terminal status of a build. Completion events
// are not deduplicated.
//
// Builders that are not configured for repo are skipped silently.
func (r *Reconciler) SetCompletedStatus(ctx context.Context, ref, builder, buildURL string, repo RepoSlug, result Result) error {
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With(
		"repo", repo.String(),
		"ref", ref,
		"builder", builder,
		"result", string(result),
	))

	known, err := r.builderExists(ctx, builder, repo)
	if err != nil {
		return err
	}
	if !known {
		clog.FromContext(ctx).Debug("Skipping completed status for unknown builder")
		mSkips.WithLabelValues(ReasonUnknownBuilder).Inc()
		return nil
	}

	return r.post(ctx, repo, ref, CommitStatus{
		Context:     builder,
		State:       CompletedState(result),
		TargetURL:   buildURL,
		Description: r.opts.Description(builder),
	})
}

func (r *Reconciler) post(ctx context.Context, repo RepoSlug, ref string, status CommitStatus) error {
	if _, err := r.client.CreateStatus(ctx, repo, ref, status); err != nil {
		return fmt.Errorf("creating %s status for %s on %s@%s: %w", status.State, status.Context, repo, ref, err)
	}
	clog.FromContext(ctx).With(
		"state", string(status.State),
		"target_url", status.TargetURL,
	).Info("Posted commit status")
	mPosts.WithLabelValues(string(status.State)).Inc()
	return nil
}

// builderExists reports whether builder is configured for repo in either the
// prod or the try table.
func (r *Reconciler) builderExists(ctx context.Context, builder string, repo RepoSlug) (bool, error) {
	cfg, err := r.lookup.FindBuilderConfig(ctx, builder)
	if err != nil {
		return false, fmt.Errorf("looking up builder %q: %w", builder, err)
	}
	if cfg == nil {
		return false, nil
	}
	return cfg.Repo == "" || cfg.Repo == repo.Name || cfg.Repo == repo.String(), nil
}

// mostRecent returns the newest status whose context matches. Statuses are
// ordered by creation time, newest first; entries with equal or missing
// timestamps keep the order they were listed in.
func mostRecent(statuses []CommitStatus, context string) *CommitStatus {
	ordered := make([]CommitStatus, len(statuses))
	copy(ordered, statuses)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})
	for i := range ordered {
		if ordered[i].Context == context {
			return &ordered[i]
		}
	}
	return nil
}
