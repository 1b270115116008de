/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package watchers holds what the issue-spec and pr-review cycles share:
// polling the event window against the stored cursor and tracing the cycle.
package watchers

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/eventcursor"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
	"chainguard.dev/agentwatch/watchers/summary"
)

const tracerName = "chainguard.dev/agentwatch/watchers"

// Poll fetches the event window for repo and advances prev against it.
func Poll(ctx context.Context, gh *github.Client, repo githubreconciler.Repository, perPage int, cfg retry.Config, prev eventcursor.Cursor, now time.Time) (eventcursor.Result, error) {
	feed, err := eventcursor.Fetch(ctx, gh, repo, perPage, cfg)
	if err != nil {
		return eventcursor.Result{}, err
	}

	res := eventcursor.Advance(feed, prev, now)
	log := clog.FromContext(ctx).With("repo", repo.String(), "status", string(res.Status), "new_events", len(res.Events))
	if res.Gap() {
		log.With("previous", prev.LastEventID).Warn("Cursor fell out of the event window, events may have been missed")
	} else {
		log.Info("Advanced event cursor")
	}
	return res, nil
}

// Record copies the cursor outcome into s.
func Record(s *summary.Summary, res eventcursor.Result) {
	s.CursorStatus = res.Status
	s.Cursor = res.Cursor
	s.GapDetected = res.Gap()
	s.NewEvents = len(res.Events)
}

// StartCycle opens the span covering the cycle s reports on.
func StartCycle(ctx context.Context, s *summary.Summary) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "watcher.cycle", trace.WithAttributes(
		attribute.String("job", s.Job),
		attribute.String("repository", s.Repository),
		attribute.String("run_id", s.RunID),
	))
}

// EndCycle closes span with the cycle's outcome.
func EndCycle(span trace.Span, s *summary.Summary) {
	span.SetAttributes(
		attribute.String("cursor.status", string(s.CursorStatus)),
		attribute.Int("events.new", s.NewEvents),
		attribute.Int("runs", len(s.Runs)),
		attribute.Int("runs.failed", s.FailedRuns()),
	)
	if s.Error != "" {
		span.SetStatus(codes.Error, s.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
