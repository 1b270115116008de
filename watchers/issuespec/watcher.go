/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package issuespec runs one cycle of the issue-spec watcher: new labeled,
// checkbox-gated issues become agent runs in the repository working tree.
package issuespec

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
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/issuematcher"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/statestore"
	"chainguard.dev/agentwatch/watchers"
	"chainguard.dev/agentwatch/watchers/summary"
)

// Job names this watcher in summaries and metrics.
const Job = "issue-spec"

// Watcher drives issue-spec cycles for one repository.
type Watcher struct {
	gh      *github.Client
	repo    githubreconciler.Repository
	store   statestore.Store
	matcher *issuematcher.Matcher
	runner  agentinvoker.Runner

	perPage int
	dryRun  bool
	workDir string
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

// WithWorkDir sets the directory the agent runs in. Empty inherits the
// process working directory.
func WithWorkDir(dir string) Option {
	return func(w *Watcher) { w.workDir = dir }
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
func New(gh *github.Client, repo githubreconciler.Repository, store statestore.Store, matcher *issuematcher.Matcher, runner agentinvoker.Runner, opts ...Option) (*Watcher, error) {
	switch {
	case gh == nil:
		return nil, errors.New("github client is required")
	case store == nil:
		return nil, errors.New("state store is required")
	case matcher == nil:
		return nil, errors.New("matcher is required")
	case runner == nil:
		return nil, errors.New("agent runner is required")
	}

	w := &Watcher{
		gh:      gh,
		repo:    repo,
		store:   store,
		matcher: matcher,
		runner:  runner,
		perPage: eventcursor.MaxPerPage,
		retry:   retry.DefaultConfig(),
		now:     time.Now,
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
	log := clog.FromContext(ctx)
	state := w.store.Load(ctx)

	res, err := watchers.Poll(ctx, w.gh, w.repo, w.perPage, w.retry, state.Cursor, w.now())
	if err != nil {
		return err
	}
	watchers.Record(sum, res)

	// The cursor is committed before any agent runs.
	state.Cursor = res.Cursor
	state.GapDetected = res.Gap()
	if err := w.store.SaveAtomic(ctx, state); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	if res.Status == eventcursor.StatusFirstRun {
		log.With("cursor", res.Cursor.LastEventID).Info("First run, recorded cursor only")
		return nil
	}

	match := w.matcher.Match(ctx, events.ClassifyAll(res.Events), true)
	sum.Matched = match.Items
	sum.Observed = match.Observed
	sum.Suppressed = match.Suppressed

	for _, item := range match.Items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cycle interrupted before %s: %w", item.Key, err)
		}
		sum.Runs = append(sum.Runs, w.run(ctx, item))
	}
	return nil
}

func (w *Watcher) run(ctx context.Context, item githubreconciler.ActionableItem) githubreconciler.RunResult {
	log := clog.FromContext(ctx).With("unit", item.Key, "reason", item.Reason)

	prompt, err := agentinvoker.BuildPrompt(w.repo, item)
	if err != nil {
		return githubreconciler.RunResult{UnitKey: item.Key, ExitCode: -1, Error: err.Error()}
	}
	if w.dryRun {
		log.Info("Dry run, not invoking agent")
		return githubreconciler.RunResult{UnitKey: item.Key, Skipped: true}
	}

	log.Info("Invoking agent")
	result := w.runner.Run(ctx, item, prompt, w.workDir)
	if !result.Succeeded() {
		log.With("exit_code", result.ExitCode, "signal", result.Signal, "error", result.Error).Warn("Agent run failed")
	}
	return result
}
