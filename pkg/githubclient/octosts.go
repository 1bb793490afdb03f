/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"chainguard.dev/sdk/sts"
	"cloud.google.com/go/compute/metadata"
	"github.com/chainguard-dev/clog"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// OctoSTSEndpoint is the Octo STS token exchange.
const OctoSTSEndpoint = "https://octo-sts.dev"

// ErrPolicyNotFound is returned when Octo STS has no trust policy, or no
// installation, for the requested scope.
var ErrPolicyNotFound = errors.New("octo-sts policy not found")

// octoTokenFunc is a variable so tests can replace the exchange.
var octoTokenFunc = exchangeOctoSTS

// Octo STS tokens are valid for 60 minutes. Tokens whose expiry is unknown
// are refreshed after defaultOctoLifetime, and known expiries are brought
// forward by octoExpiryMargin.
const (
	defaultOctoLifetime = 55 * time.Minute
	octoExpiryMargin    = 5 * time.Minute
)

// exchangeOctoSTS mints a GitHub token for the given org/repo scope.
func exchangeOctoSTS(ctx context.Context, identity, org, repo string) (sts.TokenPair, error) {
	// Local development may use a personal token, but never on GCE.
	if tok := os.Getenv("GH_TOKEN"); tok != "" && !metadata.OnGCE() {
		clog.WarnContext(ctx, "using GH_TOKEN instead of Octo STS")
		return sts.TokenPair{AccessToken: tok}, nil
	}

	scope := org
	if repo != "" {
		scope = org + "/" + repo
	}

	xchg := sts.New(
		OctoSTSEndpoint,
		identity,
		sts.WithScope(scope),
		sts.WithIdentity(identity),
	)

	ts, err := idtoken.NewTokenSource(ctx, "octo-sts.dev" /* aud */)
	if err != nil {
		return sts.TokenPair{}, fmt.Errorf("creating identity token source: %w", err)
	}
	tok, err := ts.Token()
	if err != nil {
		return sts.TokenPair{}, fmt.Errorf("minting identity token: %w", err)
	}
	res, err := xchg.Exchange(ctx, tok.AccessToken)
	if err != nil {
		return sts.TokenPair{}, err
	}
	return res, nil
}

// octoExpiry returns when a token minted at now should be refreshed.
func octoExpiry(res sts.TokenPair, now time.Time) time.Time {
	if res.Expiry.IsZero() {
		return now.Add(defaultOctoLifetime)
	}
	if e := res.Expiry.Add(-octoExpiryMargin); e.After(now) {
		return e
	}
	return res.Expiry
}

type octoTokenSource struct {
	ctx      context.Context
	identity string
	org      string
	repo     string
}

// Token implements oauth2.TokenSource
func (ts *octoTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ts.ctx, time.Minute)
	defer cancel()

	res, err := octoTokenFunc(ctx, ts.identity, ts.org, ts.repo)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			clog.ErrorContextf(ctx, "Got NotFound from Octo STS for %s/%s: %v", ts.org, ts.repo, err)
			return nil, fmt.Errorf("%w: %w", ErrPolicyNotFound, err)
		}
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		Expiry:      octoExpiry(res, time.Now()),
	}, nil
}

// OctoSTSTokenSource returns a TokenSourceFunc exchanging workload identity for
// GitHub tokens through the given Octo STS trust policy.
func OctoSTSTokenSource(identity string) TokenSourceFunc {
	return func(ctx context.Context, org, repo string) (oauth2.TokenSource, error) {
		return oauth2.ReuseTokenSource(nil, &octoTokenSource{
			ctx:      ctx,
			identity: identity,
			org:      org,
			repo:     repo,
		}), nil
	}
}
