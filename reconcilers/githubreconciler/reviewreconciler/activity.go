/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reviewreconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v84/github"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
)

// isBot matches the review bot by case-insensitive substring of login.
func (r *Reconciler) isBot(login string) bool {
	return login != "" && strings.Contains(strings.ToLower(login), r.bot)
}

// latestBotActivity returns the newest bot review or comment on PR n. The
// zero time means the bot never touched the pull request.
func (r *Reconciler) latestBotActivity(ctx context.Context, n int) (time.Time, error) {
	var latest time.Time
	bump := func(login string, ts github.Timestamp) {
		if r.isBot(login) && ts.After(latest) {
			latest = ts.Time
		}
	}

	opts := &github.ListOptions{PerPage: 100}
	for {
		var next int
		reviews, err := retry.Do(ctx, r.retry, "list reviews", retry.IsRetryable, func() ([]*github.PullRequestReview, error) {
			reviews, resp, err := r.gh.PullRequests.ListReviews(ctx, r.repo.Owner, r.repo.Name, n, opts)
			if err != nil {
				return nil, err
			}
			next = resp.NextPage
			return reviews, nil
		})
		if err != nil {
			return time.Time{}, fmt.Errorf("listing reviews: %w", err)
		}
		for _, rv := range reviews {
			bump(rv.GetUser().GetLogin(), rv.GetSubmittedAt())
		}
		if next == 0 {
			break
		}
		opts.Page = next
	}

	rcOpts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var next int
		comments, err := retry.Do(ctx, r.retry, "list review comments", retry.IsRetryable, func() ([]*github.PullRequestComment, error) {
			comments, resp, err := r.gh.PullRequests.ListComments(ctx, r.repo.Owner, r.repo.Name, n, rcOpts)
			if err != nil {
				return nil, err
			}
			next = resp.NextPage
			return comments, nil
		})
		if err != nil {
			return time.Time{}, fmt.Errorf("listing review comments: %w", err)
		}
		for _, c := range comments {
			bump(c.GetUser().GetLogin(), c.GetCreatedAt())
		}
		if next == 0 {
			break
		}
		rcOpts.Page = next
	}

	icOpts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var next int
		comments, err := retry.Do(ctx, r.retry, "list issue comments", retry.IsRetryable, func() ([]*github.IssueComment, error) {
			comments, resp, err := r.gh.Issues.ListComments(ctx, r.repo.Owner, r.repo.Name, n, icOpts)
			if err != nil {
				return nil, err
			}
			next = resp.NextPage
			return comments, nil
		})
		if err != nil {
			return time.Time{}, fmt.Errorf("listing issue comments: %w", err)
		}
		for _, c := range comments {
			bump(c.GetUser().GetLogin(), c.GetCreatedAt())
		}
		if next == 0 {
			break
		}
		icOpts.Page = next
	}

	return latest, nil
}

// headCommitTime returns the committer date of sha, falling back to the
// author date.
func (r *Reconciler) headCommitTime(ctx context.Context, sha string) (time.Time, error) {
	c, err := retry.Do(ctx, r.retry, "get commit", retry.IsRetryable, func() (*github.RepositoryCommit, error) {
		c, _, err := r.gh.Repositories.GetCommit(ctx, r.repo.Owner, r.repo.Name, sha, nil)
		return c, err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("getting commit %s: %w", sha, err)
	}
	if ts := c.GetCommit().GetCommitter().GetDate(); !ts.IsZero() {
		return ts.Time, nil
	}
	if ts := c.GetCommit().GetAuthor().GetDate(); !ts.IsZero() {
		return ts.Time, nil
	}
	return time.Time{}, fmt.Errorf("commit %s has no date", sha)
}
