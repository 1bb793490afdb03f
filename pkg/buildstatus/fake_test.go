/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildstatus

import (
	"context"
	"sync"
)

type createCall struct {
	Repo   RepoSlug
	Ref    string
	Status CommitStatus
}

type fakeStatusClient struct {
	mu        sync.Mutex
	statuses  []CommitStatus
	listErr   error
	createErr error

	listCalls int
	created   []createCall
}

func (f *fakeStatusClient) ListStatuses(_ context.Context, _ RepoSlug, _ string) ([]CommitStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.statuses, nil
}

func (f *fakeStatusClient) CreateStatus(_ context.Context, repo RepoSlug, ref string, status CommitStatus) (*CommitStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, createCall{Repo: repo, Ref: ref, Status: status})
	return &status, nil
}

func (f *fakeStatusClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls + len(f.created)
}

type fakeLookup struct {
	builders    map[string]BuilderConfig
	tryBuilders map[string]BuilderConfig
	err         error
}

func (f *fakeLookup) FindBuilderConfig(_ context.Context, name string) (*BuilderConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.builders[name]; ok {
		return &c, nil
	}
	if c, ok := f.tryBuilders[name]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeLookup) WatchedBuilders(_ context.Context) (map[string]BuilderConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tryBuilders, nil
}

type fakeSearcher struct {
	builds []BuildIdentity
	err    error

	bucket string
	tags   []Tag
}

func (f *fakeSearcher) SearchBuilds(_ context.Context, bucket string, tags []Tag) ([]BuildIdentity, error) {
	f.bucket, f.tags = bucket, tags
	return f.builds, f.err
}

var flutter = RepoSlug{Owner: "flutter", Name: "flutter"}

func testLookup() *fakeLookup {
	return &fakeLookup{
		builders: map[string]BuilderConfig{
			"Linux Host Engine": {Repo: "engine"},
		},
		tryBuilders: map[string]BuilderConfig{
			"Mac":       {Repo: "flutter"},
			"Linux":     {Repo: "flutter", TaskName: "linux_bot"},
			"Windows":   {},
			"Cocoon CI": {Repo: "cocoon"},
		},
	}
}
