/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package buildbucket is a small client for the Buildbucket v2 pRPC API.
package buildbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/chainguard-dev/build-status-reporter/pkg/buildstatus"
	"github.com/chainguard-dev/build-status-reporter/pkg/httpmetrics"
)

const (
	// DefaultHost is the production Buildbucket service.
	DefaultHost = "cr-buildbucket.appspot.com"

	// pRPC prefixes JSON responses to defeat XSSI.
	xssiPrefix = ")]}'"

	searchFields = "builds.*.id,builds.*.builder,builds.*.number,builds.*.status,nextPageToken"
	pageSize     = 1000
)

// Error is returned when Buildbucket answers with a non-200 status.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("buildbucket: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client searches builds within a single project.
type Client struct {
	baseURL    string
	project    string
	httpClient *http.Client
}

var _ buildstatus.BuildSearcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for requests. It should attach
// credentials.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the scheme and host requests are sent to.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// New creates a client for project on host.
func New(host, project string, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		baseURL:    "https://" + host,
		project:    project,
		httpClient: &http.Client{Transport: httpmetrics.Transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultHTTPClient returns an instrumented client carrying Application
// Default Credentials.
func DefaultHTTPClient(ctx context.Context) (*http.Client, error) {
	ts, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/userinfo.email")
	if err != nil {
		return nil, fmt.Errorf("finding default credentials: %w", err)
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   httpmetrics.Transport,
		},
	}, nil
}

// SearchBuilds returns every build in bucket that carries all of tags.
func (c *Client) SearchBuilds(ctx context.Context, bucket string, tags []buildstatus.Tag) ([]buildstatus.BuildIdentity, error) {
	req := searchBuildsRequest{
		Predicate: buildPredicate{
			Builder: BuilderID{Project: c.project, Bucket: bucket},
			Tags:    tags,
		},
		Fields:   searchFields,
		PageSize: pageSize,
	}

	var out []buildstatus.BuildIdentity
	for {
		var resp searchBuildsResponse
		if err := c.call(ctx, "SearchBuilds", req, &resp); err != nil {
			return nil, err
		}
		for _, b := range resp.Builds {
			out = append(out, b.Identity())
		}
		if resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	clog.FromContext(ctx).With("bucket", bucket, "tags", tags).Debugf("Found %d builds", len(out))
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}
	url := fmt.Sprintf("%s/prpc/buildbucket.v2.Builds/%s", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte(xssiPrefix))
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}
