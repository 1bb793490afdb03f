/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/chainguard-dev/clog/slogtest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v75/github"

	"github.com/chainguard-dev/build-status-reporter/pkg/buildstatus"
)

type testClients struct {
	url *url.URL
}

func (tc testClients) Get(context.Context, string, string) (*github.Client, error) {
	c := github.NewClient(nil)
	u := *tc.url
	u.Path = "/"
	c.BaseURL = &u
	return c, nil
}

func newServer(t *testing.T, h http.Handler) ClientGetter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return testClients{url: u}
}

var flutter = buildstatus.RepoSlug{Owner: "flutter", Name: "flutter"}

func TestListStatusesPaginates(t *testing.T) {
	ctx := slogtest.Context(t)
	t1 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)

	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/flutter/flutter/commits/abc/statuses", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("per_page"); got != "100" {
			t.Errorf("per_page = %q, want 100", got)
		}
		var page []map[string]any
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/flutter/flutter/commits/abc/statuses?page=2&per_page=100>; rel="next"`, srvURL))
			page = []map[string]any{{
				"context": "Mac", "state": "pending", "target_url": "u2", "description": "d", "created_at": t1,
			}}
		case "2":
			page = []map[string]any{{
				"context": "Mac", "state": "success", "target_url": "u1", "description": "d", "created_at": t0,
			}}
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
		json.NewEncoder(w).Encode(page) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL
	u, _ := url.Parse(srv.URL)

	got, err := New(testClients{url: u}).ListStatuses(ctx, flutter, "abc")
	if err != nil {
		t.Fatalf("ListStatuses() = %v", err)
	}
	want := []buildstatus.CommitStatus{
		{Context: "Mac", State: buildstatus.StatePending, TargetURL: "u2", Description: "d", CreatedAt: t1},
		{Context: "Mac", State: buildstatus.StateSuccess, TargetURL: "u1", Description: "d", CreatedAt: t0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListStatuses() mismatch (-want +got):\n%s", diff)
	}
}

func TestListStatusesError(t *testing.T) {
	ctx := slogtest.Context(t)
	clients := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	if _, err := New(clients).ListStatuses(ctx, flutter, "abc"); err == nil {
		t.Fatal("ListStatuses() = nil, want error")
	}
}

func TestCreateStatus(t *testing.T) {
	ctx := slogtest.Context(t)

	var got github.RepoStatus
	clients := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/flutter/flutter/statuses/abc" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(got) //nolint:errcheck
	}))

	status := buildstatus.CommitStatus{
		Context:     "Mac",
		State:       buildstatus.StatePending,
		TargetURL:   "url?reload=30",
		Description: "Flutter LUCI Build: Mac",
	}
	created, err := New(clients).CreateStatus(ctx, flutter, "abc", status)
	if err != nil {
		t.Fatalf("CreateStatus() = %v", err)
	}
	if diff := cmp.Diff(status, *created); diff != "" {
		t.Errorf("CreateStatus() mismatch (-want +got):\n%s", diff)
	}
	if got.GetState() != "pending" || got.GetContext() != "Mac" || got.GetTargetURL() != "url?reload=30" {
		t.Errorf("request body = %+v", got)
	}
}
