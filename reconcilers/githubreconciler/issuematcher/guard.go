/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package issuematcher

import (
	"context"
	"fmt"
	"regexp"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
)

// fixesRef matches a "Fixes #n" reference that is not a prefix of a longer
// issue number.
func fixesRef(n int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?i)\bfixes #%d\b`, n))
}

// HasOpenPR reports whether an open pull request body references issue n
// with "Fixes #n". Search results are verified against the body because the
// search index matches loosely. Lookup failures are logged and reported as
// no pull request.
func (m *Matcher) HasOpenPR(ctx context.Context, n int) bool {
	log := clog.FromContext(ctx).With("repo", m.repo.String(), "issue", n)

	q := fmt.Sprintf(`repo:%s is:pr is:open "Fixes #%d" in:body`, m.repo, n)
	result, err := retry.Do(ctx, m.retry, "search open pull requests", retry.IsRetryable, func() (*github.IssuesSearchResult, error) {
		r, _, err := m.gh.Search.Issues(ctx, q, &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 50}})
		return r, err
	})
	if err != nil {
		log.With("error", err).Warn("Open pull request lookup failed, assuming none")
		return false
	}

	ref := fixesRef(n)
	for _, pr := range result.Issues {
		if !pr.IsPullRequest() || pr.GetState() != "open" {
			continue
		}
		if ref.MatchString(pr.GetBody()) {
			log.With("pr", pr.GetNumber()).Info("Open pull request already fixes issue")
			return true
		}
	}
	return false
}
