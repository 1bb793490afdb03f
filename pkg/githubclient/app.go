/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"golang.org/x/oauth2"

	"github.com/chainguard-dev/build-status-reporter/pkg/httpmetrics"
)

// installationTransport is the subset of *ghinstallation.Transport used here.
type installationTransport interface {
	Token(ctx context.Context) (string, error)
	Expiry() (expiresAt, refreshAt time.Time, err error)
}

type appTokenSource struct {
	ctx context.Context
	itr installationTransport
}

// Token implements oauth2.TokenSource
func (ts *appTokenSource) Token() (*oauth2.Token, error) {
	tok, err := ts.itr.Token(ts.ctx)
	if err != nil {
		return nil, fmt.Errorf("getting installation token: %w", err)
	}
	_, refreshAt, err := ts.itr.Expiry()
	if err != nil {
		return nil, fmt.Errorf("getting installation token expiry: %w", err)
	}
	return &oauth2.Token{
		AccessToken: tok,
		TokenType:   "Bearer",
		Expiry:      refreshAt,
	}, nil
}

// AppTokenSource returns a TokenSourceFunc that authenticates as a GitHub App
// installation. The installation is fixed, so the same token serves every
// org/repo it has access to.
func AppTokenSource(appID, installationID int64, privateKey []byte) (TokenSourceFunc, error) {
	itr, err := ghinstallation.New(httpmetrics.WrapTransport(http.DefaultTransport), appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport: %w", err)
	}
	return func(ctx context.Context, _, _ string) (oauth2.TokenSource, error) {
		return oauth2.ReuseTokenSource(nil, &appTokenSource{ctx: ctx, itr: itr}), nil
	}, nil
}
