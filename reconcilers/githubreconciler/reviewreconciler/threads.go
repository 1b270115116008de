/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reviewreconciler

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
)

type gqlReviewThread struct {
	IsResolved bool
	IsOutdated bool
	Comments   struct {
		Nodes []struct {
			Author struct {
				Login string
			}
		}
	} `graphql:"comments(first: 100)"`
}

// unresolvedBotThreads counts review threads on PR n that are neither
// resolved nor outdated and contain a comment by the bot. Every page of
// threads is read before the count is returned.
func (r *Reconciler) unresolvedBotThreads(ctx context.Context, n int) (int, error) {
	var (
		count  int
		cursor *githubv4.String
	)
	for {
		var query struct {
			Repository struct {
				PullRequest struct {
					ReviewThreads struct {
						PageInfo struct {
							HasNextPage bool
							EndCursor   string
						}
						Nodes []gqlReviewThread
					} `graphql:"reviewThreads(first: 100, after: $cursor)"`
				} `graphql:"pullRequest(number: $number)"`
			} `graphql:"repository(owner: $owner, name: $repo)"`
		}

		variables := map[string]any{
			"owner":  githubv4.String(r.repo.Owner),
			"repo":   githubv4.String(r.repo.Name),
			"number": githubv4.Int(n),
			"cursor": cursor,
		}

		if _, err := retry.Do(ctx, r.retry, "query review threads", retry.IsRetryableQuery, func() (struct{}, error) {
			return struct{}{}, r.gql.Query(ctx, &query, variables)
		}); err != nil {
			return 0, fmt.Errorf("querying review threads: %w", err)
		}

		threads := query.Repository.PullRequest.ReviewThreads
		for _, t := range threads.Nodes {
			if t.IsResolved || t.IsOutdated {
				continue
			}
			for _, c := range t.Comments.Nodes {
				if r.isBot(c.Author.Login) {
					count++
					break
				}
			}
		}

		if !threads.PageInfo.HasNextPage {
			return count, nil
		}
		if threads.PageInfo.EndCursor == "" {
			return 0, fmt.Errorf("review threads page for #%d has next page but no cursor", n)
		}
		cursor = githubv4.NewString(githubv4.String(threads.PageInfo.EndCursor))
	}
}
