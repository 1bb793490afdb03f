/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package receiver

import (
	"time"

	"github.com/google/go-github/v75/github"
)

// CloudEvent types handled by the receiver.
const (
	// BuildEventType carries a buildbucket.Notification.
	BuildEventType = "dev.chainguard.luci.build"

	// PullRequestEventType carries a GitHub pull_request webhook payload,
	// wrapped the way the github-events trampoline publishes it.
	PullRequestEventType = "dev.chainguard.github.pull_request"
)

// Wrapper is the envelope the github-events trampoline puts around webhook
// payloads.
type Wrapper[T any] struct {
	When time.Time
	Body T
}

// PullRequestEvent is the webhook payload of pull request events.
type PullRequestEvent = github.PullRequestEvent
