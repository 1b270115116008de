/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package reviewreconciler derives alerts and agent work from pull request
// activity. Each cycle it reports failed or stalled checks, finds pull
// requests with unresolved review-bot threads, and finds pull requests whose
// author pushed after the bot's last feedback.
package reviewreconciler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/sync/errgroup"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/events"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/statestore"
)

// Reconciler evaluates pull requests in one repository against a review bot.
type Reconciler struct {
	gh          *github.Client
	gql         *githubv4.Client
	repo        githubreconciler.Repository
	bot         string
	recentLimit int
	stallAfter  time.Duration
	retry       retry.Config
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRecentLimit sets how many recently updated open pull requests are
// evaluated when no event names a candidate.
func WithRecentLimit(n int) Option {
	return func(r *Reconciler) {
		r.recentLimit = n
	}
}

// WithStallAfter sets how long a check may stay pending before it is
// reported as stalled.
func WithStallAfter(d time.Duration) Option {
	return func(r *Reconciler) {
		r.stallAfter = d
	}
}

// WithRetry sets the retry policy for pull request lookups.
func WithRetry(cfg retry.Config) Option {
	return func(r *Reconciler) {
		r.retry = cfg
	}
}

// New constructs a Reconciler. bot is matched case-insensitively as a
// substring of commenter logins.
func New(gh *github.Client, gql *githubv4.Client, repo githubreconciler.Repository, bot string, opts ...Option) (*Reconciler, error) {
	if gh == nil || gql == nil {
		return nil, errors.New("github clients cannot be nil")
	}
	bot = strings.ToLower(strings.TrimSpace(bot))
	if bot == "" {
		return nil, errors.New("review bot cannot be empty")
	}
	r := &Reconciler{
		gh:          gh,
		gql:         gql,
		repo:        repo,
		bot:         bot,
		recentLimit: 10,
		stallAfter:  30 * time.Minute,
		retry:       retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.recentLimit < 1 || r.recentLimit > 100 {
		return nil, fmt.Errorf("recent limit must be between 1 and 100, got %d", r.recentLimit)
	}
	if err := r.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return r, nil
}

// Skip records a candidate excluded because a lookup failed.
type Skip struct {
	Number int    `json:"number"`
	Error  string `json:"error"`
}

// Result is the outcome of one Reconcile.
type Result struct {
	Urgent []string
	// Candidates are the pull requests evaluated, in first-seen order, and
	// CandidateSource is "events" or "recent".
	Candidates      []int
	CandidateSource string
	Actionable      []githubreconciler.ActionableItem
	Ready           []githubreconciler.ActionableItem
	Skipped         []Skip
	// Notifications is the notification map with this cycle's ready
	// transitions recorded.
	Notifications statestore.Records
}

// Reconcile evaluates the chronological events of one cycle. notifications
// is not modified.
func (r *Reconciler) Reconcile(ctx context.Context, evs []events.Event, notifications statestore.Records, now time.Time) Result {
	log := clog.FromContext(ctx).With("repo", r.repo.String())

	res := Result{
		Urgent:        UrgentLines(evs, now, r.stallAfter),
		Notifications: notifications,
	}

	res.Candidates, res.CandidateSource = candidatesFromEvents(evs), "events"
	if len(res.Candidates) == 0 {
		res.CandidateSource = "recent"
		recent, err := r.recentOpen(ctx)
		if err != nil {
			log.With("error", err).Warn("Listing recent pull requests failed")
		}
		res.Candidates = recent
	}

	for _, n := range res.Candidates {
		ev, err := r.Evaluate(ctx, n)
		if err != nil {
			log.With("pr", n, "error", err).Warn("Skipping pull request")
			res.Skipped = append(res.Skipped, Skip{Number: n, Error: err.Error()})
			continue
		}
		if ev == nil {
			continue
		}

		switch ev.Classify() {
		case ClassActionable:
			res.Actionable = append(res.Actionable, ev.item("unresolved review threads"))
		case ClassReady:
			notify, updated := statestore.Check(res.Notifications, n, ev.HeadSHA, ev.LatestActivity, now)
			res.Notifications = updated
			if notify {
				res.Ready = append(res.Ready, ev.item("pushed after review"))
			} else {
				log.With("pr", n).Debug("Ready transition already reported")
			}
		}
	}

	log.With("candidates", len(res.Candidates), "source", res.CandidateSource,
		"urgent", len(res.Urgent), "actionable", len(res.Actionable),
		"ready", len(res.Ready), "skipped", len(res.Skipped)).Info("Reconciled pull requests")
	return res
}

// candidatesFromEvents lists pull requests referenced by review, comment,
// pull request and check events, in first-seen order.
func candidatesFromEvents(evs []events.Event) []int {
	var out []int
	for _, ev := range evs {
		for _, n := range ev.PullRequestNumbers() {
			if !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
	}
	return out
}

func (r *Reconciler) recentOpen(ctx context.Context) ([]int, error) {
	prs, err := retry.Do(ctx, r.retry, "list recent pull requests", retry.IsRetryable, func() ([]*github.PullRequest, error) {
		prs, _, err := r.gh.PullRequests.List(ctx, r.repo.Owner, r.repo.Name, &github.PullRequestListOptions{
			State:       "open",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: github.ListOptions{PerPage: r.recentLimit},
		})
		return prs, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing open pull requests: %w", err)
	}
	out := make([]int, 0, len(prs))
	for _, pr := range prs {
		out = append(out, pr.GetNumber())
	}
	return out, nil
}

// Class is the review state of an evaluated pull request.
type Class string

const (
	// ClassUntouched means the bot never reviewed or commented.
	ClassUntouched Class = "untouched"
	// ClassActionable means bot threads remain unresolved.
	ClassActionable Class = "actionable"
	// ClassReady means no bot threads remain and the head moved past the
	// bot's last activity.
	ClassReady Class = "ready"
	// ClassWaiting means no bot threads remain but nothing was pushed since.
	ClassWaiting Class = "waiting"
)

// Evaluation is the review state of one open pull request.
type Evaluation struct {
	Number         int
	Title          string
	URL            string
	Branch         string
	HeadSHA        string
	HeadOwner      string
	HeadRepo       string
	Unresolved     int
	LatestActivity time.Time
	HeadCommitAt   time.Time
}

// Classify places the evaluation in exactly one class.
func (e *Evaluation) Classify() Class {
	switch {
	case e.LatestActivity.IsZero():
		return ClassUntouched
	case e.Unresolved > 0:
		return ClassActionable
	case e.HeadCommitAt.After(e.LatestActivity):
		return ClassReady
	default:
		return ClassWaiting
	}
}

func (e *Evaluation) item(reason string) githubreconciler.ActionableItem {
	return githubreconciler.ActionableItem{
		Key:            githubreconciler.PullRequestKey(e.Number),
		Type:           githubreconciler.ResourceTypePullRequest,
		Number:         e.Number,
		Reason:         reason,
		Title:          e.Title,
		URL:            e.URL,
		Branch:         e.Branch,
		HeadSHA:        e.HeadSHA,
		HeadOwner:      e.HeadOwner,
		HeadRepo:       e.HeadRepo,
		Unresolved:     e.Unresolved,
		LatestActivity: e.LatestActivity,
		HeadCommitAt:   e.HeadCommitAt,
	}
}

// Evaluate fetches PR n and its review metadata. It returns nil when the pull
// request is not open. The three metadata lookups run concurrently; any
// failure fails the evaluation.
func (r *Reconciler) Evaluate(ctx context.Context, n int) (*Evaluation, error) {
	pr, err := retry.Do(ctx, r.retry, "get pull request", retry.IsRetryable, func() (*github.PullRequest, error) {
		pr, _, err := r.gh.PullRequests.Get(ctx, r.repo.Owner, r.repo.Name, n)
		return pr, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting pull request #%d: %w", n, err)
	}
	if pr.GetState() != "open" {
		clog.FromContext(ctx).With("pr", n, "state", pr.GetState()).Debug("Pull request not open")
		return nil, nil
	}

	ev := &Evaluation{
		Number:    n,
		Title:     pr.GetTitle(),
		URL:       pr.GetHTMLURL(),
		Branch:    pr.GetHead().GetRef(),
		HeadSHA:   pr.GetHead().GetSHA(),
		HeadOwner: pr.GetHead().GetRepo().GetOwner().GetLogin(),
		HeadRepo:  pr.GetHead().GetRepo().GetName(),
	}
	if ev.HeadSHA == "" {
		return nil, fmt.Errorf("pull request #%d has no head sha", n)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		t, err := r.latestBotActivity(egCtx, n)
		ev.LatestActivity = t
		return err
	})
	eg.Go(func() error {
		c, err := r.unresolvedBotThreads(egCtx, n)
		ev.Unresolved = c
		return err
	})
	eg.Go(func() error {
		t, err := r.headCommitTime(egCtx, ev.HeadSHA)
		ev.HeadCommitAt = t
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("evaluating pull request #%d: %w", n, err)
	}
	return ev, nil
}
