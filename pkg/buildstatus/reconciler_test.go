/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildstatus

import (
	"errors"
	"testing"
	"time"

	"github.com/chainguard-dev/clog/slogtest"
	"github.com/google/go-cmp/cmp"
)

func TestSetPendingStatus(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		builder  string
		statuses []CommitStatus
		want     bool
		wantPost *CommitStatus
	}{{
		name:    "no existing status",
		builder: "Mac",
		want:    true,
		wantPost: &CommitStatus{
			Context:     "Mac",
			State:       StatePending,
			TargetURL:   "url?reload=30",
			Description: "Flutter LUCI Build: Mac",
		},
	}, {
		name:    "previous failure",
		builder: "Mac",
		statuses: []CommitStatus{
			{Context: "Mac", State: StateFailure, TargetURL: "url"},
		},
		want: true,
		wantPost: &CommitStatus{
			Context:     "Mac",
			State:       StatePending,
			TargetURL:   "url?reload=30",
			Description: "Flutter LUCI Build: Mac",
		},
	}, {
		name:    "previous success",
		builder: "Mac",
		statuses: []CommitStatus{
			{Context: "Mac", State: StateSuccess, TargetURL: "url"},
		},
		want: true,
		wantPost: &CommitStatus{
			Context:     "Mac",
			State:       StatePending,
			TargetURL:   "url?reload=30",
			Description: "Flutter LUCI Build: Mac",
		},
	}, {
		name:    "previous error",
		builder: "Mac",
		statuses: []CommitStatus{
			{Context: "Mac", State: StateError, TargetURL: "other"},
		},
		want: true,
		wantPost: &CommitStatus{
			Context:     "Mac",
			State:       StatePending,
			TargetURL:   "url?reload=30",
			Description: "Flutter LUCI Build: Mac",
		},
	}, {
		name:    "pending with same url",
		builder: "Mac",
		statuses: []CommitStatus{
			{Context: "Mac", State: StatePending, TargetURL: "url"},
		},
		want: false,
	}, {
		name:    "pending with same url and reload suffix",
		builder: "Mac",
		statuses: []CommitStatus{
			{Context: "Mac", State: StatePending, TargetURL: "url?reload=30"},
		},
		want: false,
	}, {
		name:    "pending with different url",
		builder: "Mac",
		statuses: []CommitStatus{
			{Context: "Mac", State: StatePending, TargetURL: "old-url"},
		},
		want: true,
		wantPost: &CommitStatus{
			Context:     "Mac",
			State:       StatePending,
			TargetURL:   "url?reload=30",
			Description: "Flutter LUCI Build: Mac",
		},
	}, {
		name:    "only other contexts",
		builder: "Linux",
		statuses: []CommitStatus{
			{Context: "Mac", State: StatePending, TargetURL: "url"},
		},
		want: true,
		wantPost: &CommitStatus{
			Context:     "Linux",
			State:       StatePending,
			TargetURL:   "url?reload=30",
			Description: "Flutter LUCI Build: Linux",
		},
	}, {
		name:    "newest entry wins when listed newest first",
		builder: "Mac",
		statuses: []CommitStatus{
			{Context: "Mac", State: StatePending, TargetURL: "url"},
			{Context: "Mac", State: StateFailure, TargetURL: "url"},
		},
		want: false,
	}, {
		name:    "newest entry wins when listed out of order",
		builder: "Mac",
		statuses: []CommitStatus{
			{Context: "Mac", State: StatePending, TargetURL: "url", CreatedAt: now.Add(-time.Hour)},
			{Context: "Mac", State: StateFailure, TargetURL: "url", CreatedAt: now},
		},
		want: true,
		wantPost: &CommitStatus{
			Context:     "Mac",
			State:       StatePending,
			TargetURL:   "url?reload=30",
			Description: "Flutter LUCI Build: Mac",
		},
	}, {
		name:    "builder without repo restriction",
		builder: "Windows",
		want:    true,
		wantPost: &CommitStatus{
			Context:     "Windows",
			State:       StatePending,
			TargetURL:   "url?reload=30",
			Description: "Flutter LUCI Build: Windows",
		},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := slogtest.Context(t)
			client := &fakeStatusClient{statuses: tt.statuses}
			r := NewReconciler(client, testLookup(), Options{})

			got, err := r.SetPendingStatus(ctx, "123hash", tt.builder, "url", flutter)
			if err != nil {
				t.Fatalf("SetPendingStatus() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SetPendingStatus() = %v, want %v", got, tt.want)
			}

			if tt.wantPost == nil {
				if len(client.created) != 0 {
					t.Errorf("created %d statuses, want none: %+v", len(client.created), client.created)
				}
				return
			}
			want := []createCall{{Repo: flutter, Ref: "123hash", Status: *tt.wantPost}}
			if diff := cmp.Diff(want, client.created); diff != "" {
				t.Errorf("created statuses (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetPendingStatusUnknownBuilder(t *testing.T) {
	tests := []struct {
		name    string
		builder string
	}{{
		name:    "absent from both tables",
		builder: "Nonexistent",
	}, {
		name:    "configured for another repository",
		builder: "Cocoon CI",
	}, {
		name:    "prod builder of another repository",
		builder: "Linux Host Engine",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := slogtest.Context(t)
			client := &fakeStatusClient{}
			r := NewReconciler(client, testLookup(), Options{})

			got, err := r.SetPendingStatus(ctx, "123hash", tt.builder, "url", flutter)
			if err != nil {
				t.Fatalf("SetPendingStatus() error = %v", err)
			}
			if got {
				t.Error("SetPendingStatus() = true, want false")
			}
			if n := client.calls(); n != 0 {
				t.Errorf("status client calls = %d, want 0", n)
			}

			if err := r.SetCompletedStatus(ctx, "123hash", tt.builder, "url", flutter, ResultSuccess); err != nil {
				t.Fatalf("SetCompletedStatus() error = %v", err)
			}
			if n := client.calls(); n != 0 {
				t.Errorf("status client calls = %d, want 0", n)
			}
		})
	}
}

func TestSetPendingStatusProdBuilder(t *testing.T) {
	ctx := slogtest.Context(t)
	client := &fakeStatusClient{}
	r := NewReconciler(client, testLookup(), Options{})

	got, err := r.SetPendingStatus(ctx, "abc", "Linux Host Engine", "url", RepoSlug{Owner: "flutter", Name: "engine"})
	if err != nil {
		t.Fatalf("SetPendingStatus() error = %v", err)
	}
	if !got {
		t.Error("SetPendingStatus() = false, want true")
	}
}

func TestSetPendingStatusErrors(t *testing.T) {
	listErr := errors.New("list boom")
	createErr := errors.New("create boom")
	lookupErr := errors.New("config boom")

	tests := []struct {
		name    string
		client  *fakeStatusClient
		lookup  *fakeLookup
		wantErr error
	}{{
		name:    "list failure",
		client:  &fakeStatusClient{listErr: listErr},
		lookup:  testLookup(),
		wantErr: listErr,
	}, {
		name:    "create failure",
		client:  &fakeStatusClient{createErr: createErr},
		lookup:  testLookup(),
		wantErr: createErr,
	}, {
		name:    "config failure",
		client:  &fakeStatusClient{},
		lookup:  &fakeLookup{err: lookupErr},
		wantErr: lookupErr,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := slogtest.Context(t)
			r := NewReconciler(tt.client, tt.lookup, Options{})

			got, err := r.SetPendingStatus(ctx, "123hash", "Mac", "url", flutter)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetPendingStatus() error = %v, want %v", err, tt.wantErr)
			}
			if got {
				t.Error("SetPendingStatus() = true, want false")
			}
		})
	}
}

func TestSetCompletedStatus(t *testing.T) {
	tests := []struct {
		name      string
		result    Result
		statuses  []CommitStatus
		wantState State
	}{{
		name:      "success",
		result:    ResultSuccess,
		wantState: StateSuccess,
	}, {
		name:      "lowercase success",
		result:    "success",
		wantState: StateSuccess,
	}, {
		name:      "failure",
		result:    ResultFailure,
		wantState: StateFailure,
	}, {
		name:      "canceled",
		result:    ResultCanceled,
		wantState: StateFailure,
	}, {
		name:      "infra failure",
		result:    ResultInfraFailure,
		wantState: StateFailure,
	}, {
		name:      "unknown result",
		result:    "SOMETHING_NEW",
		wantState: StateFailure,
	}, {
		name:   "posts even when already complete",
		result: ResultSuccess,
		statuses: []CommitStatus{
			{Context: "Mac", State: StateSuccess, TargetURL: "url"},
		},
		wantState: StateSuccess,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := slogtest.Context(t)
			client := &fakeStatusClient{statuses: tt.statuses}
			r := NewReconciler(client, testLookup(), Options{DescriptionPrefix: "Acme CI"})

			if err := r.SetCompletedStatus(ctx, "123hash", "Mac", "url", flutter, tt.result); err != nil {
				t.Fatalf("SetCompletedStatus() error = %v", err)
			}

			want := []createCall{{
				Repo: flutter,
				Ref:  "123hash",
				Status: CommitStatus{
					Context:     "Mac",
					State:       tt.wantState,
					TargetURL:   "url",
					Description: "Acme CI: Mac",
				},
			}}
			if diff := cmp.Diff(want, client.created); diff != "" {
				t.Errorf("created statuses (-want +got):\n%s", diff)
			}
			if client.listCalls != 0 {
				t.Errorf("list calls = %d, want 0", client.listCalls)
			}
		})
	}
}

func TestSetCompletedStatusError(t *testing.T) {
	ctx := slogtest.Context(t)
	createErr := errors.New("create boom")
	r := NewReconciler(&fakeStatusClient{createErr: createErr}, testLookup(), Options{})

	if err := r.SetCompletedStatus(ctx, "123hash", "Mac", "url", flutter, ResultFailure); !errors.Is(err, createErr) {
		t.Errorf("SetCompletedStatus() error = %v, want %v", err, createErr)
	}
}

func TestDecidePending(t *testing.T) {
	ctx := slogtest.Context(t)
	client := &fakeStatusClient{statuses: []CommitStatus{
		{Context: "Mac", State: StatePending, TargetURL: "url"},
	}}
	r := NewReconciler(client, testLookup(), Options{})

	tests := []struct {
		builder string
		url     string
		want    Decision
	}{
		{builder: "Mac", url: "url", want: Decision{Reason: ReasonUnchanged}},
		{builder: "Mac", url: "new", want: Decision{ShouldPost: true, Reason: ReasonURLChanged}},
		{builder: "Linux", url: "url", want: Decision{ShouldPost: true, Reason: ReasonNoStatus}},
		{builder: "Nope", url: "url", want: Decision{Reason: ReasonUnknownBuilder}},
	}
	for _, tt := range tests {
		got, err := r.DecidePending(ctx, "ref", tt.builder, tt.url, flutter)
		if err != nil {
			t.Fatalf("DecidePending(%q) error = %v", tt.builder, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("DecidePending(%q, %q) (-want +got):\n%s", tt.builder, tt.url, diff)
		}
	}
	if len(client.created) != 0 {
		t.Errorf("DecidePending created %d statuses", len(client.created))
	}
}
