/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildstatus

import (
	"fmt"
	"strings"
	"time"
)

// State is the state of a commit status.
type State string

const (
	StatePending State = "pending"
	StateSuccess State = "success"
	StateFailure State = "failure"
	StateError   State = "error"
)

// Result is the terminal outcome of a build, as reported by the build system.
type Result string

const (
	ResultSuccess      Result = "SUCCESS"
	ResultFailure      Result = "FAILURE"
	ResultInfraFailure Result = "INFRA_FAILURE"
	ResultCanceled     Result = "CANCELED"
)

// CommitStatus is a single status entry on a commit.
type CommitStatus struct {
	// Context uniquely names the check on the commit. It is the builder name.
	Context string

	State       State
	TargetURL   string
	Description string

	// CreatedAt is set on statuses read back from the host. It is zero on
	// statuses that have not been posted yet.
	CreatedAt time.Time
}

// BuildIdentity identifies a build in the build system.
type BuildIdentity struct {
	ID      int64
	Project string
	Bucket  string
	Builder string
	Number  int
}

// BuilderConfig is the configuration of a single named builder.
type BuilderConfig struct {
	// Repo is the repository the builder reports to. Empty matches any repository.
	Repo string `json:"repo,omitempty"`

	// TaskName is an optional internal task name.
	TaskName string `json:"task_name,omitempty"`
}

// RepoSlug identifies a GitHub repository.
type RepoSlug struct {
	Owner string
	Name  string
}

// ParseRepoSlug parses an "owner/name" string.
func ParseRepoSlug(s string) (RepoSlug, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoSlug{}, fmt.Errorf("invalid repository slug %q: expected owner/name", s)
	}
	return RepoSlug{Owner: owner, Name: name}, nil
}

// String returns the "owner/name" form of the slug.
func (r RepoSlug) String() string {
	return r.Owner + "/" + r.Name
}

// Decision is the outcome of comparing a candidate pending status with the
// statuses already recorded. It is computed on every call and never stored.
type Decision struct {
	ShouldPost bool
	Reason     string
}

// Reasons reported in a Decision.
const (
	ReasonUnknownBuilder = "unknown_builder"
	ReasonNoStatus       = "no_status"
	ReasonStateChanged   = "state_changed"
	ReasonURLChanged     = "url_changed"
	ReasonUnchanged      = "unchanged"
)
