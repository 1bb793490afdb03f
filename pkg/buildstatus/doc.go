/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package buildstatus reports build-system outcomes to GitHub as commit statuses.
//
// The package is built around two types:
//
// Reconciler decides whether a commit status must be written for a builder on a
// commit, by comparing the candidate against the most recent status already
// recorded for that context. Pending updates are idempotent: an existing pending
// status with the same target URL suppresses the write. Completed updates are
// always written.
//
// Dispatcher searches the build system for every build belonging to a pull
// request and commit, filters them against the watched (try) builder table, and
// hands each watched build to the Reconciler as a pending status.
//
// Both consume narrow interfaces (StatusClient, BuildSearcher, ConfigLookup) so
// that transport, retry, caching and credentials stay with the collaborators.
//
// # Usage
//
//	rec := buildstatus.NewReconciler(statuses, lookup, buildstatus.Options{
//	    DescriptionPrefix: "Flutter LUCI Build",
//	})
//	posted, err := rec.SetPendingStatus(ctx, sha, "Mac", buildURL, repo)
//
//	d := buildstatus.NewDispatcher(rec, builds, lookup, opts)
//	err = d.SetBuildsPendingStatus(ctx, 123, sha, repo)
package buildstatus
