/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reviewreconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/events"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/githubtest"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/statestore"
)

var (
	repo = githubreconciler.Repository{Owner: "acme", Name: "widgets"}

	t0  = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	now = t0.Add(4 * time.Hour)
)

func newReconciler(t *testing.T, f *githubtest.Fake, opts ...Option) *Reconciler {
	t.Helper()
	srv := f.Serve(t)
	opts = append([]Option{WithRetry(retry.Config{})}, opts...)
	r, err := New(srv.REST, srv.GraphQL, repo, "Review-Bot", opts...)
	require.NoError(t, err)
	return r
}

func reviewEvent(id string, pr int) events.Event {
	return classify(id, "PullRequestReviewEvent", fmt.Sprintf(`{"action":"created","review":{"id":1},"pull_request":{"number":%d}}`, pr))
}

func numbers(items []githubreconciler.ActionableItem) []int {
	var out []int
	for _, it := range items {
		out = append(out, it.Number)
	}
	return out
}

func botThread() githubtest.Thread {
	return githubtest.Thread{Authors: []string{"alice", "review-bot[bot]"}}
}

func TestReconcileClasses(t *testing.T) {
	f := githubtest.NewFake("acme", "widgets")

	// Actionable: unresolved bot thread on the second page.
	f.AddPullRequest(&githubtest.PullRequest{
		Number: 1, Branch: "feat-1", HeadSHA: "sha1", CommitAt: t0,
		Reviews: []githubtest.Activity{{Login: "review-bot[bot]", At: t0.Add(time.Hour)}},
		ThreadPages: [][]githubtest.Thread{
			{{Resolved: true, Authors: []string{"review-bot[bot]"}}, {Authors: []string{"alice"}}},
			{botThread(), {Outdated: true, Authors: []string{"review-bot[bot]"}}},
		},
	})
	// Ready: bot commented, then the author pushed.
	f.AddPullRequest(&githubtest.PullRequest{
		Number: 2, Branch: "feat-2", HeadSHA: "sha2", CommitAt: t0.Add(2 * time.Hour),
		IssueComments: []githubtest.Activity{{Login: "REVIEW-BOT", At: t0.Add(time.Hour)}},
	})
	// Waiting: bot commented after the last push.
	f.AddPullRequest(&githubtest.PullRequest{
		Number: 3, Branch: "feat-3", HeadSHA: "sha3", CommitAt: t0,
		ReviewComments: []githubtest.Activity{{Login: "review-bot", At: t0.Add(time.Hour)}},
	})
	// Untouched: the bot never reviewed, even with a bot-free thread open.
	f.AddPullRequest(&githubtest.PullRequest{
		Number: 4, Branch: "feat-4", HeadSHA: "sha4", CommitAt: t0,
		Reviews:     []githubtest.Activity{{Login: "alice", At: t0.Add(time.Hour)}},
		ThreadPages: [][]githubtest.Thread{{{Authors: []string{"alice"}}}},
	})
	// Closed pull requests are dropped.
	f.AddPullRequest(&githubtest.PullRequest{Number: 5, State: "closed", HeadSHA: "sha5"})

	r := newReconciler(t, f)
	evs := []events.Event{
		reviewEvent("1", 1), reviewEvent("2", 2), reviewEvent("3", 1),
		reviewEvent("4", 3), reviewEvent("5", 4), reviewEvent("6", 5),
	}
	res := r.Reconcile(context.Background(), evs, nil, now)

	if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, res.Candidates); diff != "" {
		t.Errorf("Candidates mismatch (-want +got):\n%s", diff)
	}
	if res.CandidateSource != "events" {
		t.Errorf("CandidateSource: got = %q, wanted = events", res.CandidateSource)
	}
	if diff := cmp.Diff([]int{1}, numbers(res.Actionable)); diff != "" {
		t.Errorf("Actionable mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, numbers(res.Ready)); diff != "" {
		t.Errorf("Ready mismatch (-want +got):\n%s", diff)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("Skipped: got = %+v, wanted none", res.Skipped)
	}

	got := res.Actionable[0]
	want := githubreconciler.ActionableItem{
		Key:            "pr-1",
		Type:           githubreconciler.ResourceTypePullRequest,
		Number:         1,
		Reason:         "unresolved review threads",
		URL:            "https://github.com/acme/widgets/pull/1",
		Branch:         "feat-1",
		HeadSHA:        "sha1",
		HeadOwner:      "acme",
		HeadRepo:       "widgets",
		Unresolved:     1,
		LatestActivity: t0.Add(time.Hour),
		HeadCommitAt:   t0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Actionable item mismatch (-want +got):\n%s", diff)
	}

	rec, ok := res.Notifications[2]
	if !ok || rec.HeadSHA != "sha2" || !rec.LatestActivity.Equal(t0.Add(time.Hour)) {
		t.Errorf("Notifications[2]: got = %+v, wanted sha2 at %v", rec, t0.Add(time.Hour))
	}
}

func TestReconcileReadyDedup(t *testing.T) {
	f := githubtest.NewFake("acme", "widgets")
	f.AddPullRequest(&githubtest.PullRequest{
		Number: 7, HeadSHA: "A", CommitAt: t0.Add(2 * time.Hour),
		Reviews: []githubtest.Activity{{Login: "review-bot", At: t0.Add(time.Hour)}},
	})
	r := newReconciler(t, f)
	evs := []events.Event{reviewEvent("1", 7)}

	first := r.Reconcile(context.Background(), evs, nil, now)
	require.Len(t, first.Ready, 1)

	second := r.Reconcile(context.Background(), evs, first.Notifications, now.Add(time.Hour))
	if len(second.Ready) != 0 {
		t.Errorf("second Ready: got = %v, wanted none", numbers(second.Ready))
	}

	f.AddPullRequest(&githubtest.PullRequest{
		Number: 7, HeadSHA: "B", CommitAt: t0.Add(3 * time.Hour),
		Reviews: []githubtest.Activity{{Login: "review-bot", At: t0.Add(time.Hour)}},
	})
	third := r.Reconcile(context.Background(), evs, second.Notifications, now.Add(2*time.Hour))
	if diff := cmp.Diff([]int{7}, numbers(third.Ready)); diff != "" {
		t.Errorf("third Ready mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileSkipsFailedLookups(t *testing.T) {
	f := githubtest.NewFake("acme", "widgets")
	f.AddPullRequest(&githubtest.PullRequest{Number: 1, HeadSHA: "s1", FailThreads: true,
		Reviews: []githubtest.Activity{{Login: "review-bot", At: t0}}})
	f.AddPullRequest(&githubtest.PullRequest{Number: 2, HeadSHA: "s2", FailCommit: true,
		Reviews: []githubtest.Activity{{Login: "review-bot", At: t0}}})
	f.AddPullRequest(&githubtest.PullRequest{Number: 3, HeadSHA: "s3", FailGet: true})
	f.AddPullRequest(&githubtest.PullRequest{Number: 4, HeadSHA: "s4", CommitAt: t0,
		Reviews:     []githubtest.Activity{{Login: "review-bot", At: t0}},
		ThreadPages: [][]githubtest.Thread{{botThread()}}})

	r := newReconciler(t, f)
	res := r.Reconcile(context.Background(), []events.Event{
		reviewEvent("1", 1), reviewEvent("2", 2), reviewEvent("3", 3), reviewEvent("4", 4),
	}, nil, now)

	var skipped []int
	for _, s := range res.Skipped {
		skipped = append(skipped, s.Number)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4}, numbers(res.Actionable)); diff != "" {
		t.Errorf("Actionable mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateRetriesTransientFailures(t *testing.T) {
	f := githubtest.NewFake("acme", "widgets")
	f.AddPullRequest(&githubtest.PullRequest{
		Number: 6, Branch: "feat-6", HeadSHA: "sha6", CommitAt: t0,
		Reviews:        []githubtest.Activity{{Login: "review-bot", At: t0.Add(time.Hour)}},
		ReviewComments: []githubtest.Activity{{Login: "review-bot", At: t0.Add(2 * time.Hour)}},
		IssueComments:  []githubtest.Activity{{Login: "review-bot", At: t0.Add(3 * time.Hour)}},
		ThreadPages:    [][]githubtest.Thread{{botThread()}},
	})
	flaky := []string{
		"/repos/acme/widgets/pulls/6",
		"/repos/acme/widgets/pulls/6/reviews",
		"/repos/acme/widgets/pulls/6/comments",
		"/repos/acme/widgets/issues/6/comments",
		"/repos/acme/widgets/commits/sha6",
		githubtest.GraphQLPath,
	}
	for _, path := range flaky {
		f.Flake(path, 1)
	}

	r := newReconciler(t, f, WithRetry(retry.Config{MaxRetries: 1}))
	ev, err := r.Evaluate(context.Background(), 6)
	require.NoError(t, err)
	require.NotNil(t, ev)

	if ev.Unresolved != 1 {
		t.Errorf("Unresolved: got = %d, wanted = 1", ev.Unresolved)
	}
	if !ev.LatestActivity.Equal(t0.Add(3 * time.Hour)) {
		t.Errorf("LatestActivity: got = %v, wanted = %v", ev.LatestActivity, t0.Add(3*time.Hour))
	}
	if !ev.HeadCommitAt.Equal(t0) {
		t.Errorf("HeadCommitAt: got = %v, wanted = %v", ev.HeadCommitAt, t0)
	}

	calls := make(map[string]int)
	for _, req := range f.Requests() {
		calls[req]++
	}
	for _, path := range flaky {
		method := "GET "
		if path == githubtest.GraphQLPath {
			method = "POST "
		}
		if got := calls[method+path]; got != 2 {
			t.Errorf("%s calls: got = %d, wanted = 2", path, got)
		}
	}
}

func TestReconcileFallsBackToRecent(t *testing.T) {
	f := githubtest.NewFake("acme", "widgets")
	f.SetRecent(9, 8)
	f.AddPullRequest(&githubtest.PullRequest{Number: 8, HeadSHA: "s8", CommitAt: t0})
	f.AddPullRequest(&githubtest.PullRequest{Number: 9, HeadSHA: "s9", CommitAt: t0,
		Reviews:     []githubtest.Activity{{Login: "review-bot", At: t0}},
		ThreadPages: [][]githubtest.Thread{{botThread()}}})

	r := newReconciler(t, f, WithRecentLimit(2))
	evs := []events.Event{classify("1", "WatchEvent", `{"action":"started"}`)}
	res := r.Reconcile(context.Background(), evs, nil, now)

	if res.CandidateSource != "recent" {
		t.Errorf("CandidateSource: got = %q, wanted = recent", res.CandidateSource)
	}
	if diff := cmp.Diff([]int{9, 8}, res.Candidates); diff != "" {
		t.Errorf("Candidates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{9}, numbers(res.Actionable)); diff != "" {
		t.Errorf("Actionable mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileUrgentScenario(t *testing.T) {
	f := githubtest.NewFake("acme", "widgets")
	f.AddPullRequest(&githubtest.PullRequest{Number: 5, HeadSHA: "s5", CommitAt: t0})
	r := newReconciler(t, f)

	evs := []events.Event{
		classify("1", "CheckRunEvent", `{"action":"completed","check_run":{"name":"build","status":"completed","conclusion":"failure","pull_requests":[{"number":5}]}}`),
	}
	res := r.Reconcile(context.Background(), evs, nil, now)

	require.Len(t, res.Urgent, 1)
	require.Contains(t, res.Urgent[0], "PR #5")
	require.Contains(t, res.Urgent[0], "FAILURE")
	if diff := cmp.Diff([]int{5}, res.Candidates); diff != "" {
		t.Errorf("Candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileDoesNotMutateNotifications(t *testing.T) {
	f := githubtest.NewFake("acme", "widgets")
	f.AddPullRequest(&githubtest.PullRequest{
		Number: 7, HeadSHA: "B", CommitAt: t0.Add(2 * time.Hour),
		Reviews: []githubtest.Activity{{Login: "review-bot", At: t0.Add(time.Hour)}},
	})
	r := newReconciler(t, f)

	in := statestore.Records{7: {HeadSHA: "A", LatestActivity: t0}}
	res := r.Reconcile(context.Background(), []events.Event{reviewEvent("1", 7)}, in, now)

	require.Len(t, res.Ready, 1)
	require.Equal(t, "A", in[7].HeadSHA)
	require.Equal(t, "B", res.Notifications[7].HeadSHA)
}

func TestNewValidation(t *testing.T) {
	srv := githubtest.NewFake("acme", "widgets").Serve(t)
	tests := []struct {
		name string
		bot  string
		opts []Option
	}{
		{"empty bot", "  ", nil},
		{"zero recent limit", "bot", []Option{WithRecentLimit(0)}},
		{"bad retry", "bot", []Option{WithRetry(retry.Config{MaxRetries: -1})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(srv.REST, srv.GraphQL, repo, tt.bot, tt.opts...); err == nil {
				t.Error("New: got = nil error, wanted = error")
			}
		})
	}
	if _, err := New(nil, srv.GraphQL, repo, "bot"); err == nil {
		t.Error("New(nil rest): got = nil error, wanted = error")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   Evaluation
		want Class
	}{
		{"untouched", Evaluation{Unresolved: 3, HeadCommitAt: now}, ClassUntouched},
		{"actionable", Evaluation{Unresolved: 1, LatestActivity: t0, HeadCommitAt: now}, ClassActionable},
		{"ready", Evaluation{LatestActivity: t0, HeadCommitAt: now}, ClassReady},
		{"same instant is waiting", Evaluation{LatestActivity: t0, HeadCommitAt: t0}, ClassWaiting},
		{"waiting", Evaluation{LatestActivity: now, HeadCommitAt: t0}, ClassWaiting},
	}
	for _, tt := range tests {
		if got := tt.ev.Classify(); got != tt.want {
			t.Errorf("%s: Classify() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
