/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildbucket

import (
	"strings"

	"github.com/chainguard-dev/build-status-reporter/pkg/buildstatus"
)

// Status is the lifecycle state of a build.
type Status string

const (
	StatusScheduled    Status = "SCHEDULED"
	StatusStarted      Status = "STARTED"
	StatusSuccess      Status = "SUCCESS"
	StatusFailure      Status = "FAILURE"
	StatusInfraFailure Status = "INFRA_FAILURE"
	StatusCanceled     Status = "CANCELED"
)

// Ended reports whether s is a terminal status.
func (s Status) Ended() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusInfraFailure, StatusCanceled:
		return true
	}
	return false
}

// BuilderID names a builder.
type BuilderID struct {
	Project string `json:"project"`
	Bucket  string `json:"bucket"`
	Builder string `json:"builder,omitempty"`
}

// Build is the subset of buildbucket.v2.Build this service reads.
type Build struct {
	// int64 fields are encoded as JSON strings by pRPC.
	ID      int64             `json:"id,string"`
	Builder BuilderID         `json:"builder"`
	Number  int               `json:"number,omitempty"`
	Status  Status            `json:"status,omitempty"`
	Tags    []buildstatus.Tag `json:"tags,omitempty"`
}

// Identity returns the build's identity.
func (b Build) Identity() buildstatus.BuildIdentity {
	return buildstatus.BuildIdentity{
		ID:      b.ID,
		Project: b.Builder.Project,
		Bucket:  b.Builder.Bucket,
		Builder: b.Builder.Builder,
		Number:  b.Number,
	}
}

// Tag returns the values of every tag named key.
func (b Build) Tag(key string) []string {
	var out []string
	for _, t := range b.Tags {
		if t.Key == key {
			out = append(out, t.Value)
		}
	}
	return out
}

// Commit returns the sha of the first "sha/git/" buildset tag.
func (b Build) Commit() (string, bool) {
	for _, v := range b.Tag("buildset") {
		if sha, ok := strings.CutPrefix(v, "sha/git/"); ok && sha != "" {
			return sha, true
		}
	}
	return "", false
}

// Notification is the JSON body Buildbucket publishes to pub/sub when a
// build changes state.
type Notification struct {
	Build    Build  `json:"build"`
	Hostname string `json:"hostname,omitempty"`
}

type buildPredicate struct {
	Builder BuilderID         `json:"builder"`
	Tags    []buildstatus.Tag `json:"tags,omitempty"`
}

type searchBuildsRequest struct {
	Predicate buildPredicate `json:"predicate"`
	Fields    string         `json:"fields,omitempty"`
	PageSize  int            `json:"pageSize,omitempty"`
	PageToken string         `json:"pageToken,omitempty"`
}

type searchBuildsResponse struct {
	Builds        []Build `json:"builds"`
	NextPageToken string  `json:"nextPageToken"`
}
