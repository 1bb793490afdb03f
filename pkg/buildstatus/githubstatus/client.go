/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubstatus implements buildstatus.StatusClient on top of the
// GitHub commit status API.
package githubstatus

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"

	"github.com/chainguard-dev/build-status-reporter/pkg/buildstatus"
)

// ClientGetter returns a GitHub client able to act on org/repo.
// *githubclient.ClientCache satisfies it.
type ClientGetter interface {
	Get(ctx context.Context, org, repo string) (*github.Client, error)
}

// Client reads and writes commit statuses.
type Client struct {
	clients ClientGetter
	perPage int
}

var _ buildstatus.StatusClient = (*Client)(nil)

// New creates a Client that obtains per-repository clients from clients.
func New(clients ClientGetter) *Client {
	return &Client{clients: clients, perPage: 100}
}

// ListStatuses returns every status on ref, following pagination. GitHub
// returns them newest first.
func (c *Client) ListStatuses(ctx context.Context, repo buildstatus.RepoSlug, ref string) ([]buildstatus.CommitStatus, error) {
	gh, err := c.clients.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, err
	}

	var out []buildstatus.CommitStatus
	opts := &github.ListOptions{PerPage: c.perPage}
	for {
		statuses, resp, err := gh.Repositories.ListStatuses(ctx, repo.Owner, repo.Name, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("listing statuses for %s@%s: %w", repo, ref, err)
		}
		for _, s := range statuses {
			out = append(out, fromGitHub(s))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	clog.FromContext(ctx).Debugf("Found %d statuses on %s@%s", len(out), repo, ref)
	return out, nil
}

// CreateStatus posts status on ref.
func (c *Client) CreateStatus(ctx context.Context, repo buildstatus.RepoSlug, ref string, status buildstatus.CommitStatus) (*buildstatus.CommitStatus, error) {
	gh, err := c.clients.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, err
	}

	created, _, err := gh.Repositories.CreateStatus(ctx, repo.Owner, repo.Name, ref, &github.RepoStatus{
		State:       github.Ptr(string(status.State)),
		TargetURL:   github.Ptr(status.TargetURL),
		Description: github.Ptr(status.Description),
		Context:     github.Ptr(status.Context),
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s status %q on %s@%s: %w", status.State, status.Context, repo, ref, err)
	}
	cs := fromGitHub(created)
	return &cs, nil
}

func fromGitHub(s *github.RepoStatus) buildstatus.CommitStatus {
	return buildstatus.CommitStatus{
		Context:     s.GetContext(),
		State:       buildstatus.State(s.GetState()),
		TargetURL:   s.GetTargetURL(),
		Description: s.GetDescription(),
		CreatedAt:   s.GetCreatedAt().Time,
	}
}
