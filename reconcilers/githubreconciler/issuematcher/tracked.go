/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package issuematcher

import (
	"time"

	"github.com/google/go-github/v84/github"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
)

// TrackedIssue is the per-cycle view of an issue the matcher evaluates.
type TrackedIssue struct {
	Number          int
	Title           string
	URL             string
	State           string
	Labels          []string
	CheckboxChecked bool
	UpdatedAt       time.Time
	Body            string
	PullRequest     bool
}

// Track materializes a TrackedIssue from an API issue.
func Track(issue *github.Issue) TrackedIssue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return TrackedIssue{
		Number:          issue.GetNumber(),
		Title:           issue.GetTitle(),
		URL:             issue.GetHTMLURL(),
		State:           issue.GetState(),
		Labels:          labels,
		CheckboxChecked: CheckboxChecked(issue.GetBody()),
		UpdatedAt:       issue.GetUpdatedAt().Time,
		Body:            issue.GetBody(),
		PullRequest:     issue.IsPullRequest(),
	}
}

func (t TrackedIssue) item(reason string) githubreconciler.ActionableItem {
	return githubreconciler.ActionableItem{
		Key:    githubreconciler.IssueKey(t.Number),
		Type:   githubreconciler.ResourceTypeIssue,
		Number: t.Number,
		Reason: reason,
		Title:  t.Title,
		URL:    t.URL,
		Body:   t.Body,
	}
}
