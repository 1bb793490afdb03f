/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildstatus

import (
	"fmt"
	"strings"
)

const (
	// DefaultDescriptionPrefix prefixes the description of every status.
	DefaultDescriptionPrefix = "Flutter LUCI Build"

	// DefaultReloadSuffix is appended to pending target URLs so the build page
	// refreshes itself while the build runs.
	DefaultReloadSuffix = "?reload=30"

	// DefaultConsoleURL is the base of build page URLs.
	DefaultConsoleURL = "https://ci.chromium.org"

	// GitHub rejects descriptions longer than this many characters.
	maxDescriptionLength = 140
)

// Options configures the Reconciler and Dispatcher.
type Options struct {
	// DescriptionPrefix is the organization-specific description prefix.
	DescriptionPrefix string

	// ReloadSuffix is appended to pending target URLs.
	ReloadSuffix string

	// ConsoleURL is the base URL of the build console.
	ConsoleURL string

	// Project is the build-system project searched by the Dispatcher.
	Project string

	// TryBucket is the bucket holding pre-submit builds.
	TryBucket string

	// Parallelism bounds the number of builds the Dispatcher reconciles at once.
	Parallelism int
}

func (o Options) withDefaults() Options {
	if o.DescriptionPrefix == "" {
		o.DescriptionPrefix = DefaultDescriptionPrefix
	}
	if o.ReloadSuffix == "" {
		o.ReloadSuffix = DefaultReloadSuffix
	}
	if o.ConsoleURL == "" {
		o.ConsoleURL = DefaultConsoleURL
	}
	if o.TryBucket == "" {
		o.TryBucket = "try"
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	return o
}

// Description returns the status description for a builder.
func (o Options) Description(builder string) string {
	d := fmt.Sprintf("%s: %s", o.DescriptionPrefix, builder)
	if r := []rune(d); len(r) > maxDescriptionLength {
		d = string(r[:maxDescriptionLength])
	}
	return d
}

// PendingURL returns the target URL posted for a running build.
func (o Options) PendingURL(buildURL string) string {
	return buildURL + o.ReloadSuffix
}

// sameURL reports whether an existing target URL points at buildURL, with or
// without the reload suffix.
func (o Options) sameURL(existing, buildURL string) bool {
	return existing == buildURL || existing == o.PendingURL(buildURL)
}

// BuildURL returns the console URL of a build.
func (o Options) BuildURL(b BuildIdentity) string {
	project := b.Project
	if project == "" {
		project = o.Project
	}
	bucket := b.Bucket
	if bucket == "" {
		bucket = o.TryBucket
	}
	return fmt.Sprintf("%s/p/%s/builders/%s/%s/b%d",
		strings.TrimSuffix(o.ConsoleURL, "/"), project, bucket, b.Builder, b.ID)
}

// CompletedState maps a build result onto a commit status state. Only success
// is reported as success; every other outcome, including results this package
// does not know about, is a failure.
func CompletedState(r Result) State {
	if strings.EqualFold(string(r), string(ResultSuccess)) {
		return StateSuccess
	}
	return StateFailure
}
