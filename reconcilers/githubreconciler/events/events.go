/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package events classifies raw repository events into a closed set of
// kinds, each carrying its typed payload. Classification fails closed: an
// event whose payload cannot be decoded, or which lacks the object its kind
// requires, is reported as KindOther and never matches downstream.
package events

import (
	"slices"
	"time"

	"github.com/google/go-github/v84/github"
)

// Kind is the event type name used by the GitHub events API.
type Kind string

const (
	KindIssue            Kind = "IssuesEvent"
	KindIssueComment     Kind = "IssueCommentEvent"
	KindPullRequest      Kind = "PullRequestEvent"
	KindReview           Kind = "PullRequestReviewEvent"
	KindReviewComment    Kind = "PullRequestReviewCommentEvent"
	KindCheckRun         Kind = "CheckRunEvent"
	KindCheckSuite       Kind = "CheckSuiteEvent"
	KindDeploymentStatus Kind = "DeploymentStatusEvent"
	KindOther            Kind = "Other"
)

// Event is a classified repository event. Exactly the payload fields that
// belong to Kind are set.
type Event struct {
	ID        string
	Kind      Kind
	Type      string
	Action    string
	Actor     string
	CreatedAt time.Time

	Issue            *github.Issue
	IssueComment     *github.IssueComment
	PullRequest      *github.PullRequest
	PullNumber       int
	Review           *github.PullRequestReview
	ReviewComment    *github.PullRequestComment
	CheckRun         *github.CheckRun
	CheckSuite       *github.CheckSuite
	Deployment       *github.Deployment
	DeploymentStatus *github.DeploymentStatus
}

// Classify decodes the payload of e.
func Classify(e *github.Event) Event {
	ev := Event{
		ID:        e.GetID(),
		Kind:      KindOther,
		Type:      e.GetType(),
		Actor:     e.GetActor().GetLogin(),
		CreatedAt: e.GetCreatedAt().Time,
	}

	payload, err := e.ParsePayload()
	if err != nil {
		return ev
	}

	switch p := payload.(type) {
	case *github.IssuesEvent:
		if p.Issue == nil || p.Issue.GetNumber() == 0 {
			return ev
		}
		ev.Kind, ev.Action, ev.Issue = KindIssue, p.GetAction(), p.Issue

	case *github.IssueCommentEvent:
		if p.Issue == nil || p.Issue.GetNumber() == 0 {
			return ev
		}
		ev.Kind, ev.Action, ev.Issue, ev.IssueComment = KindIssueComment, p.GetAction(), p.Issue, p.Comment

	case *github.PullRequestEvent:
		n := p.GetNumber()
		if n == 0 {
			n = p.GetPullRequest().GetNumber()
		}
		if n == 0 {
			return ev
		}
		ev.Kind, ev.Action, ev.PullRequest, ev.PullNumber = KindPullRequest, p.GetAction(), p.PullRequest, n

	case *github.PullRequestReviewEvent:
		if p.GetPullRequest().GetNumber() == 0 {
			return ev
		}
		ev.Kind, ev.Action, ev.PullRequest, ev.Review = KindReview, p.GetAction(), p.PullRequest, p.Review
		ev.PullNumber = p.PullRequest.GetNumber()

	case *github.PullRequestReviewCommentEvent:
		if p.GetPullRequest().GetNumber() == 0 {
			return ev
		}
		ev.Kind, ev.Action, ev.PullRequest, ev.ReviewComment = KindReviewComment, p.GetAction(), p.PullRequest, p.Comment
		ev.PullNumber = p.PullRequest.GetNumber()

	case *github.CheckRunEvent:
		if p.CheckRun == nil {
			return ev
		}
		ev.Kind, ev.Action, ev.CheckRun = KindCheckRun, p.GetAction(), p.CheckRun

	case *github.CheckSuiteEvent:
		if p.CheckSuite == nil {
			return ev
		}
		ev.Kind, ev.Action, ev.CheckSuite = KindCheckSuite, p.GetAction(), p.CheckSuite

	case *github.DeploymentStatusEvent:
		if p.DeploymentStatus == nil {
			return ev
		}
		ev.Kind, ev.Action, ev.Deployment, ev.DeploymentStatus = KindDeploymentStatus, p.GetAction(), p.Deployment, p.DeploymentStatus
	}
	return ev
}

// ClassifyAll classifies a chronological slice of events, preserving order.
func ClassifyAll(in []*github.Event) []Event {
	out := make([]Event, 0, len(in))
	for _, e := range in {
		out = append(out, Classify(e))
	}
	return out
}

// IssueNumber returns the issue number of an issue event that is not about a
// pull request.
func (e Event) IssueNumber() (int, bool) {
	if e.Kind != KindIssue || e.Issue.IsPullRequest() {
		return 0, false
	}
	return e.Issue.GetNumber(), true
}

// PullRequestNumbers returns the pull requests an event refers to. Check runs
// and suites may reference several; deployment statuses and plain issue
// events reference none.
func (e Event) PullRequestNumbers() []int {
	switch e.Kind {
	case KindPullRequest, KindReview, KindReviewComment:
		return []int{e.PullNumber}
	case KindIssueComment:
		if e.Issue.IsPullRequest() {
			return []int{e.Issue.GetNumber()}
		}
	case KindCheckRun:
		return prNumbers(e.CheckRun.PullRequests)
	case KindCheckSuite:
		return prNumbers(e.CheckSuite.PullRequests)
	}
	return nil
}

func prNumbers(prs []*github.PullRequest) []int {
	var out []int
	for _, pr := range prs {
		if n := pr.GetNumber(); n != 0 && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
