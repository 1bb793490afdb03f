/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubclient builds GitHub API clients for the repositories a
// service reports to.
package githubclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"github.com/chainguard-dev/build-status-reporter/pkg/httpmetrics"
)

// TokenSourceFunc creates an OAuth2 token source for a given org/repo.
type TokenSourceFunc func(ctx context.Context, org, repo string) (oauth2.TokenSource, error)

// ClientCache manages GitHub clients for multiple org/repo combinations.
type ClientCache struct {
	tokenSourceFunc TokenSourceFunc
	baseURL         *url.URL
	orgScoped       bool
	limiter         *Limiter

	mu      sync.RWMutex
	clients map[string]*github.Client
}

// Option configures a ClientCache.
type Option func(*ClientCache)

// WithBaseURL points clients at a GitHub Enterprise or test API endpoint.
func WithBaseURL(u *url.URL) Option {
	return func(cc *ClientCache) {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		cc.baseURL = u
	}
}

// WithOrgScopedCredentials shares one client, and one token, across all
// repositories of an org.
func WithOrgScopedCredentials() Option {
	return func(cc *ClientCache) {
		cc.orgScoped = true
	}
}

// WithLimiter shares a rate limit pause across all cached clients.
func WithLimiter(l *Limiter) Option {
	return func(cc *ClientCache) {
		cc.limiter = l
	}
}

// NewClientCache creates a new client cache with the provided token source function.
func NewClientCache(tokenSourceFunc TokenSourceFunc, opts ...Option) *ClientCache {
	cc := &ClientCache{
		tokenSourceFunc: tokenSourceFunc,
		clients:         make(map[string]*github.Client),
	}
	for _, opt := range opts {
		opt(cc)
	}
	if cc.limiter == nil {
		cc.limiter = NewLimiter()
	}
	return cc
}

func (cc *ClientCache) key(org, repo string) string {
	if cc.orgScoped {
		return org
	}
	return fmt.Sprintf("%s/%s", org, repo)
}

// Get returns a GitHub client for the given org/repo, creating one if needed.
func (cc *ClientCache) Get(ctx context.Context, org, repo string) (*github.Client, error) {
	if cc.orgScoped {
		repo = ""
	}
	key := cc.key(org, repo)

	cc.mu.RLock()
	client, ok := cc.clients[key]
	cc.mu.RUnlock()
	if ok {
		return client, nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := cc.clients[key]; ok {
		return client, nil
	}

	// The token source outlives this request, so it must not inherit its
	// cancellation.
	ts, err := cc.tokenSourceFunc(context.WithoutCancel(ctx), org, repo)
	if err != nil {
		return nil, fmt.Errorf("creating token source for %s: %w", key, err)
	}

	client = github.NewClient(&http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   NewTransport(httpmetrics.WrapTransport(http.DefaultTransport), cc.limiter),
		},
	})
	if cc.baseURL != nil {
		base := *cc.baseURL
		client.BaseURL = &base
	}
	cc.clients[key] = client

	clog.FromContext(ctx).With("org", org, "repo", repo).Info("Created new GitHub client")
	return client, nil
}

// Clear removes all cached clients.
func (cc *ClientCache) Clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.clients = make(map[string]*github.Client)
}

// StaticTokenSource returns a TokenSourceFunc that uses the same token
// everywhere. It is meant for local development.
func StaticTokenSource(token string) TokenSourceFunc {
	return func(context.Context, string, string) (oauth2.TokenSource, error) {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), nil
	}
}
