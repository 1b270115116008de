/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package eventcursor

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
)

// MaxPerPage is the largest window the events API serves in one page.
const MaxPerPage = 100

// Fetch reads one newest-first page of repository events. Rate-limit and
// server errors are retried according to cfg.
func Fetch(ctx context.Context, gh *github.Client, repo githubreconciler.Repository, perPage int, cfg retry.Config) ([]*github.Event, error) {
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	feed, err := retry.Do(ctx, cfg, "list repository events", retry.IsRetryable, func() ([]*github.Event, error) {
		evs, _, err := gh.Activity.ListRepositoryEvents(ctx, repo.Owner, repo.Name, &github.ListOptions{PerPage: perPage})
		return evs, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch events for %s: %w", repo, err)
	}

	clog.FromContext(ctx).With("repo", repo.String(), "events", len(feed)).Debug("Fetched event window")
	return feed, nil
}
