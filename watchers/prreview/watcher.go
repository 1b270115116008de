/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prreview runs one cycle of the pr-review watcher: it reports
// failing checks and ready pull requests, and runs the agent against pull
// requests with unresolved review-bot threads.
package prreview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/agentinvoker"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/eventcursor"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/events"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/reviewreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/statestore"
	"chainguard.dev/agentwatch/watchers"
	"chainguard.dev/agentwatch/watchers/summary"
)

// Job names this watcher in summaries and metrics.
const Job = "pr-review"

// Watcher drives pr-review cycles for one repository.
type Watcher struct {
	gh         *github.Client
	repo       githubreconciler.Repository
	store      statestore.Store
	reconciler *reviewreconciler.Reconciler
	checkouter agentinvoker.Checkouter
	runner     agentinvoker.Runner

	perPage int
	dryRun  bool
	retry   retry.Config
	now     func() time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithEventsPerPage sets the event window size.
func WithEventsPerPage(n int) Option {
	return func(w *Watcher) { w.perPage = n }
}

// WithDryRun computes everything but records runs as skipped.
func WithDryRun(dryRun bool) Option {
	return func(w *Watcher) { w.dryRun = dryRun }
}

// WithRetry sets the retry policy for the event feed.
func WithRetry(cfg retry.Config) Option {
	return func(w *Watcher) { w.retry = cfg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// New returns a Watcher.
func New(gh *github.Client, repo githubreconciler.Repository, store statestore.Store, rec *reviewreconciler.Reconciler, co agentinvoker.Checkouter, runner agentinvoker.Runner, opts ...Option) (*Watcher, error) {
	switch {
	case gh == nil:
		return nil, errors.New("github client is required")
	case store == nil:
		return nil, errors.New("state store is required")
	case rec == nil:
		return nil, errors.New("review reconciler is required")
	case co == nil:
		return nil, errors.New("checkouter is required")
	case runner == nil:
		return nil, errors.New("agent runner is required")
	}

	w := &Watcher{
		gh:         gh,
		repo:       repo,
		store:      store,
		reconciler: rec,
		checkouter: co,
		runner:     runner,
		perPage:    eventcursor.MaxPerPage,
		retry:      retry.DefaultConfig(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return w, nil
}

// Cycle runs one poll cycle. Failures are reported in the summary.
func (w *Watcher) Cycle(ctx context.Context) *summary.Summary {
	sum := summary.New(Job, w.repo, w.now())
	sum.DryRun = w.dryRun

	ctx, span := watchers.StartCycle(ctx, sum)
	if err := w.cycle(ctx, sum); err != nil {
		clog.FromContext(ctx).With("job", Job, "run_id", sum.RunID, "error", err).Error("Cycle failed")
		sum.Fail(err)
	}
	sum.FinishedAt = w.now()
	watchers.EndCycle(span, sum)
	return sum
}

func (w *Watcher) cycle(ctx context.Context, sum *summary.Summary) error {
	log := clog.FromContext(ctx).With("job", Job)
	state := w.store.Load(ctx)
	now := w.now()

	res, err := watchers.Poll(ctx, w.gh, w.repo, w.perPage, w.retry, state.Cursor, now)
	if err != nil {
		return err
	}
	watchers.Record(sum, res)

	state.Cursor = res.Cursor
	state.GapDetected = res.Gap()
	if res.Status == eventcursor.StatusFirstRun {
		if err := w.store.SaveAtomic(ctx, state); err != nil {
			return fmt.Errorf("saving state: %w", err)
		}
		log.With("cursor", res.Cursor.LastEventID).Info("First run, recorded cursor only")
		return nil
	}

	rec := w.reconciler.Reconcile(ctx, events.ClassifyAll(res.Events), state.Notifications, now)
	sum.Urgent = rec.Urgent
	sum.Candidates = rec.Candidates
	sum.CandidateSource = rec.CandidateSource
	sum.Actionable = rec.Actionable
	sum.Ready = rec.Ready
	sum.Skipped = rec.Skipped

	for _, line := range rec.Urgent {
		log.With("line", line).Warn("Urgent check")
	}
	for _, it := range rec.Ready {
		log.With("pr", it.Number, "url", it.URL).Info("Pull request ready for another review")
	}

	// Cursor and notifications are written together.
	state.Notifications = rec.Notifications
	if err := w.store.SaveAtomic(ctx, state); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	for _, item := range rec.Actionable {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cycle interrupted before %s: %w", item.Key, err)
		}
		result, ran, err := w.dispatch(ctx, state, item, now)
		if ran {
			sum.Runs = append(sum.Runs, result)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// dispatch runs the agent for item unless its review state was already
// addressed by a successful run. A successful run is recorded in state and
// saved at once.
func (w *Watcher) dispatch(ctx context.Context, state *statestore.State, item githubreconciler.ActionableItem, now time.Time) (githubreconciler.RunResult, bool, error) {
	log := clog.FromContext(ctx).With("job", Job, "unit", item.Key, "head_sha", item.HeadSHA)

	fresh, updated := statestore.Check(state.Dispatches, item.Number, item.HeadSHA, item.LatestActivity, now)
	if !fresh {
		log.Info("Review state already addressed, not invoking agent")
		return githubreconciler.RunResult{}, false, nil
	}

	prompt, err := agentinvoker.BuildPrompt(w.repo, item)
	if err != nil {
		return githubreconciler.RunResult{UnitKey: item.Key, ExitCode: -1, Error: err.Error()}, true, nil
	}
	if w.dryRun {
		log.Info("Dry run, not invoking agent")
		return githubreconciler.RunResult{UnitKey: item.Key, Skipped: true}, true, nil
	}

	log.With("unresolved", item.Unresolved).Info("Invoking agent in checkout")
	result := agentinvoker.RunInCheckout(ctx, w.checkouter, w.runner, w.repo, item, prompt)
	if !result.Succeeded() {
		log.With("exit_code", result.ExitCode, "signal", result.Signal, "error", result.Error).Warn("Agent run failed")
		return result, true, nil
	}

	state.Dispatches = updated
	if err := w.store.SaveAtomic(ctx, state); err != nil {
		return result, true, fmt.Errorf("recording dispatch of %s: %w", item.Key, err)
	}
	return result, true, nil
}
