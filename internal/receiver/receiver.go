/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package receiver turns build notifications and pull request events into
// commit status updates.
package receiver

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/chainguard-dev/clog"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/protocol"

	"github.com/chainguard-dev/build-status-reporter/pkg/buildbucket"
	"github.com/chainguard-dev/build-status-reporter/pkg/buildstatus"
)

// StatusSetter is satisfied by *buildstatus.Reconciler.
type StatusSetter interface {
	SetPendingStatus(ctx context.Context, ref, builder, buildURL string, repo buildstatus.RepoSlug) (bool, error)
	SetCompletedStatus(ctx context.Context, ref, builder, buildURL string, repo buildstatus.RepoSlug, result buildstatus.Result) error
	BuildURL(b buildstatus.BuildIdentity) string
}

// PendingDispatcher is satisfied by *buildstatus.Dispatcher.
type PendingDispatcher interface {
	SetBuildsPendingStatus(ctx context.Context, pr int, sha string, repo buildstatus.RepoSlug) error
}

// Receiver handles CloudEvents.
type Receiver struct {
	statuses   StatusSetter
	dispatcher PendingDispatcher
	lookup     buildstatus.ConfigLookup

	// org and defaultRepo locate the repository of builds that carry no
	// github_link tag and whose builder names no repository.
	org         string
	defaultRepo string
}

// New creates a Receiver.
func New(statuses StatusSetter, dispatcher PendingDispatcher, lookup buildstatus.ConfigLookup, org, defaultRepo string) *Receiver {
	return &Receiver{
		statuses:    statuses,
		dispatcher:  dispatcher,
		lookup:      lookup,
		org:         org,
		defaultRepo: defaultRepo,
	}
}

// Handle dispatches event by type. Returned errors are retryable; payloads
// that can never be processed are logged and acknowledged.
func (r *Receiver) Handle(ctx context.Context, event cloudevents.Event) (err error) {
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("ce-id", event.ID(), "ce-type", event.Type()))
	defer func() {
		if p := recover(); p != nil {
			clog.ErrorContextf(ctx, "panic handling event: %v\n%s", p, debug.Stack())
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	switch event.Type() {
	case BuildEventType:
		var n buildbucket.Notification
		if err := event.DataAs(&n); err != nil {
			clog.ErrorContextf(ctx, "Dropping malformed build notification: %v", err)
			return protocol.ResultACK
		}
		return r.handleBuild(ctx, n.Build)

	case PullRequestEventType:
		var w Wrapper[PullRequestEvent]
		if err := event.DataAs(&w); err != nil {
			clog.ErrorContextf(ctx, "Dropping malformed pull request event: %v", err)
			return protocol.ResultACK
		}
		return r.handlePullRequest(ctx, w.Body)

	default:
		clog.FromContext(ctx).Debug("Ignoring event")
		return nil
	}
}

func (r *Receiver) handleBuild(ctx context.Context, b buildbucket.Build) error {
	log := clog.FromContext(ctx).With("build", b.ID, "builder", b.Builder.Builder, "status", string(b.Status))
	ctx = clog.WithLogger(ctx, log)

	sha, ok := b.Commit()
	if !ok {
		log.Debug("Ignoring build without a commit buildset")
		return nil
	}
	repo, ok, err := r.repoFor(ctx, b)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("Ignoring build with no known repository")
		return nil
	}

	url := r.statuses.BuildURL(b.Identity())
	switch {
	case b.Status == buildbucket.StatusScheduled || b.Status == buildbucket.StatusStarted:
		_, err := r.statuses.SetPendingStatus(ctx, sha, b.Builder.Builder, url, repo)
		return err
	case b.Status.Ended():
		return r.statuses.SetCompletedStatus(ctx, sha, b.Builder.Builder, url, repo, buildstatus.Result(b.Status))
	default:
		log.Debug("Ignoring build status")
		return nil
	}
}

// repoFor finds the repository a build reports to: its github_link tag when
// present, otherwise the builder's configured repository under the org.
func (r *Receiver) repoFor(ctx context.Context, b buildbucket.Build) (buildstatus.RepoSlug, bool, error) {
	for _, link := range b.Tag("github_link") {
		if repo, ok := parseGitHubLink(link); ok {
			return repo, true, nil
		}
	}

	name := r.defaultRepo
	cfg, err := r.lookup.FindBuilderConfig(ctx, b.Builder.Builder)
	if err != nil {
		return buildstatus.RepoSlug{}, false, fmt.Errorf("looking up builder %q: %w", b.Builder.Builder, err)
	}
	if cfg != nil && cfg.Repo != "" {
		name = cfg.Repo
	}
	if name == "" || r.org == "" {
		return buildstatus.RepoSlug{}, false, nil
	}
	if strings.Contains(name, "/") {
		repo, err := buildstatus.ParseRepoSlug(name)
		return repo, err == nil, nil
	}
	return buildstatus.RepoSlug{Owner: r.org, Name: name}, true, nil
}

// parseGitHubLink extracts owner/name from links like
// https://github.com/flutter/flutter/pull/123.
func parseGitHubLink(link string) (buildstatus.RepoSlug, bool) {
	rest, ok := strings.CutPrefix(link, "https://github.com/")
	if !ok {
		return buildstatus.RepoSlug{}, false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return buildstatus.RepoSlug{}, false
	}
	return buildstatus.RepoSlug{Owner: parts[0], Name: parts[1]}, true
}

func (r *Receiver) handlePullRequest(ctx context.Context, pre PullRequestEvent) error {
	switch pre.GetAction() {
	case "opened", "synchronize", "reopened":
	default:
		clog.FromContext(ctx).Debugf("Ignoring pull request action %q", pre.GetAction())
		return nil
	}

	pr := pre.GetPullRequest()
	sha := pr.GetHead().GetSHA()
	owner, name := pre.GetRepo().GetOwner().GetLogin(), pre.GetRepo().GetName()
	if sha == "" || owner == "" || name == "" {
		clog.ErrorContextf(ctx, "Dropping pull request event missing head sha or repository")
		return nil
	}
	repo := buildstatus.RepoSlug{Owner: owner, Name: name}

	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("repo", repo.String(), "pr", pr.GetNumber(), "sha", sha))
	return r.dispatcher.SetBuildsPendingStatus(ctx, pr.GetNumber(), sha, repo)
}
